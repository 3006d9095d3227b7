package report

import (
	"io"

	"github.com/nao1215/pdfaudit/internal/model"
)

// Writer defines the interface for report output.
// Implementations write audit results in various formats.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.ValidationReport) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.ValidationReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Option configures the content selection shared by all writers.
type Option func(*baseWriter)

// WithOnlyProblems hides links whose status is Ok or Redirected.
func WithOnlyProblems(only bool) Option {
	return func(b *baseWriter) {
		b.onlyProblems = only
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output       io.Writer
	onlyProblems bool
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer, opts ...Option) baseWriter {
	b := baseWriter{output: output}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// links returns the entries the writer should print.
func (b baseWriter) links(report *model.ValidationReport) []model.LinkEntry {
	if !b.onlyProblems {
		return report.Links
	}
	return report.ProblemLinks()
}

// filtered returns report with the writer's link selection applied.
// The input is never modified.
func (b baseWriter) filtered(report *model.ValidationReport) *model.ValidationReport {
	if !b.onlyProblems {
		return report
	}
	out := *report
	out.Links = b.links(report)
	if out.Links == nil {
		out.Links = []model.LinkEntry{}
	}
	return &out
}
