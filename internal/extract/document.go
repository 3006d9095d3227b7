package extract

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/ledongthuc/pdf"

	"github.com/nao1215/pdfaudit/internal/model"
)

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger for per-page diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Document) {
		d.logger = logger
	}
}

// WithIgnoreFonts excludes text set in fonts whose name contains one of the
// given fragments (case-insensitive) from cell content.
func WithIgnoreFonts(fragments []string) Option {
	return func(d *Document) {
		d.ignoreFonts = d.ignoreFonts[:0]
		for _, f := range fragments {
			if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
				d.ignoreFonts = append(d.ignoreFonts, f)
			}
		}
	}
}

// WithoutTables skips table detection. Only link annotations are extracted.
func WithoutTables() Option {
	return func(d *Document) {
		d.skipTables = true
	}
}

// WithoutLinks skips link annotations. Only table cells are extracted.
func WithoutLinks() Option {
	return func(d *Document) {
		d.skipLinks = true
	}
}

// Document is an opened PDF. It must be closed after use.
type Document struct {
	file   *os.File
	reader *pdf.Reader
	info   model.Document

	ignoreFonts []string
	skipTables  bool
	skipLinks   bool
	logger      *slog.Logger

	consumed atomic.Bool
}

// Open opens the PDF at path and reads its page count.
// Any failure is wrapped in ErrUnreadableDocument.
func Open(path string, opts ...Option) (doc *Document, err error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}

	fingerprint, err := Fingerprint(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %v", ErrUnreadableDocument, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}

	pages := r.NumPage()
	if pages < 1 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: document has no pages", ErrUnreadableDocument)
	}

	doc = &Document{
		file:   f,
		reader: r,
		info: model.Document{
			Path:        path,
			PageCount:   pages,
			Fingerprint: fingerprint,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(doc)
	}
	return doc, nil
}

// Info returns the document metadata.
func (d *Document) Info() model.Document {
	return d.info
}

// Close releases the underlying file.
func (d *Document) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// Pages returns the document's pages in order.
//
// The sequence is lazy and can be ranged over once. A page that fails to
// extract is yielded with an *ExtractionError and the sequence continues
// with the next page. A second iteration yields ErrPagesConsumed and stops.
func (d *Document) Pages() iter.Seq2[model.Page, error] {
	return func(yield func(model.Page, error) bool) {
		if !d.consumed.CompareAndSwap(false, true) {
			yield(model.Page{}, ErrPagesConsumed)
			return
		}
		for n := 1; n <= d.info.PageCount; n++ {
			page, err := d.extractPage(n)
			if err != nil {
				d.logger.Warn("skipping page", "page", n, "error", err)
			}
			if !yield(page, err) {
				return
			}
		}
	}
}

// extractPage reads one page, turning parser panics into an ExtractionError.
func (d *Document) extractPage(n int) (page model.Page, err error) {
	page.Number = n

	defer func() {
		if r := recover(); r != nil {
			page = model.Page{Number: n}
			err = &ExtractionError{Page: n, Err: fmt.Errorf("%v", r)}
		}
	}()

	p := d.reader.Page(n)
	if p.V.IsNull() {
		return page, &ExtractionError{Page: n, Err: errors.New("page object missing")}
	}

	if !d.skipLinks {
		page.Links = pageLinks(p, n)
	}
	if !d.skipTables {
		page.Cells = pageCells(p, n, d.ignoreFonts)
	}
	return page, nil
}

// Fingerprint returns the xxhash64 of the file contents as 16 hex digits.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
