// Package database provides SQLite-based storage for pdfaudit.
//
// The Store keeps two tables:
//   - link_checks: the last terminal status per normalized URL, used as the
//     link checker's cache between runs
//   - reports: complete audit reports as JSON, used by the history command
//
// The driver is modernc.org/sqlite, which needs no cgo. Timestamps are
// stored as RFC 3339 text in UTC.
package database
