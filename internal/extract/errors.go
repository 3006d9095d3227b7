package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadableDocument is returned when the file cannot be opened or is not a PDF.
	// It is fatal for the whole run.
	ErrUnreadableDocument = errors.New("unreadable document")

	// ErrPagesConsumed is yielded when the page sequence is iterated a second time.
	ErrPagesConsumed = errors.New("page sequence already consumed")

	// ErrPreflightFailed is returned when structural validation rejects the file.
	ErrPreflightFailed = errors.New("preflight validation failed")
)

// ExtractionError reports a page whose content could not be read.
// The page is skipped and the run continues.
type ExtractionError struct {
	Page int
	Err  error
}

// Error implements error.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
