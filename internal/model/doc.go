// Package model defines the data structures shared across pdfaudit.
//
// This package contains the following main types:
//   - Document, Page: what the extractor yields for an opened PDF
//   - Link, TableCell, Rect, Span: per-page annotation and table geometry
//   - LinkStatus: the closed set of link outcomes {Pending, Ok, Redirected, Invalid, Unreachable}
//   - ValidationReport: the ordered result handed to renderers and the history store
//
// The models are serializable to JSON for report output and database storage.
package model
