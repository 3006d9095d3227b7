package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrNoTarget is returned when no PDF file was given.
	ErrNoTarget = errors.New("no target specified: provide the path of a PDF file")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWorkerBounds is returned when the floor is below 1 or above the ceiling.
	ErrInvalidWorkerBounds = errors.New("invalid worker bounds: floor must be at least 1 and not exceed the ceiling")

	// ErrInvalidThresholds is returned when the page thresholds are negative or out of order.
	ErrInvalidThresholds = errors.New("invalid page thresholds: small-document threshold must not exceed the large-document threshold")

	// ErrInvalidRetries is returned when the retry count or backoff is negative.
	ErrInvalidRetries = errors.New("invalid retry settings: count and backoff must be non-negative")

	// ErrInvalidRedirects is returned when the redirect limit is negative.
	ErrInvalidRedirects = errors.New("invalid redirect limit: must be non-negative")

	// ErrInvalidTolerance is returned when the overflow tolerance is negative.
	ErrInvalidTolerance = errors.New("invalid overflow tolerance: must be non-negative")

	// ErrInvalidRateLimit is returned when the per-host rate is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingScope is returned when both --links-only and --tables-only are set.
	ErrConflictingScope = errors.New("conflicting scope: --links-only and --tables-only cannot be used together")
)
