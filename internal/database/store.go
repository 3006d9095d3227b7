package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/pdfaudit/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "pdfaudit.db"

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store provides SQLite-based storage for link results and audit reports.
// It implements linkcheck.Cache.
type Store struct {
	db     *sql.DB
	dbPath string

	// now returns the current time. Tests replace it to age cache entries.
	now func() time.Time
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the Store in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, err)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Link checks write from many goroutines; SQLite allows one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- Link checks cache the last terminal status per normalized URL
	CREATE TABLE IF NOT EXISTS link_checks (
		url TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status_json TEXT NOT NULL,
		checked_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_link_checks_checked_at ON link_checks(checked_at);

	-- Reports store complete audit results as JSON
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_path TEXT NOT NULL,
		fingerprint TEXT,
		checked_at TEXT NOT NULL,
		report_json TEXT NOT NULL,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_document ON reports(document_path);
	CREATE INDEX IF NOT EXISTS idx_reports_checked_at ON reports(checked_at);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Lookup returns the cached status for url if it was stored within maxAge.
// A non-positive maxAge never matches.
func (s *Store) Lookup(ctx context.Context, url string, maxAge time.Duration) (model.LinkStatus, bool, error) {
	if maxAge <= 0 {
		return model.LinkStatus{}, false, nil
	}

	var statusJSON, checkedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT status_json, checked_at FROM link_checks WHERE url = ?`, url,
	).Scan(&statusJSON, &checkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LinkStatus{}, false, nil
	}
	if err != nil {
		return model.LinkStatus{}, false, fmt.Errorf("failed to look up link: %w", err)
	}

	if s.now().Sub(parseTimestamp(checkedAt)) > maxAge {
		return model.LinkStatus{}, false, nil
	}

	var status model.LinkStatus
	if err := json.Unmarshal([]byte(statusJSON), &status); err != nil {
		return model.LinkStatus{}, false, fmt.Errorf("failed to parse cached status: %w", err)
	}
	return status, true, nil
}

// Store saves the status for url, replacing any previous entry.
func (s *Store) Store(ctx context.Context, url string, status model.LinkStatus) error {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to serialize status: %w", err)
	}

	query := `
	INSERT INTO link_checks (url, kind, status_json, checked_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		kind = excluded.kind,
		status_json = excluded.status_json,
		checked_at = excluded.checked_at
	`

	_, err = s.db.ExecContext(ctx, query,
		url,
		status.Kind.String(),
		string(statusJSON),
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to store link status: %w", err)
	}
	return nil
}

// PruneLinkChecks deletes cached statuses older than maxAge and returns
// the number removed.
func (s *Store) PruneLinkChecks(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM link_checks WHERE checked_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune link checks: %w", err)
	}
	return res.RowsAffected()
}

// summaryOf counts link statuses and overflows for quick history listings.
func summaryOf(report *model.ValidationReport) map[string]int {
	summary := map[string]int{
		model.StatusOK.String():          0,
		model.StatusRedirected.String():  0,
		model.StatusInvalid.String():     0,
		model.StatusUnreachable.String(): 0,
		"overflows":                      len(report.Overflows),
		"pending":                        report.Counts.Pending,
	}
	for kind, n := range report.CountByKind() {
		summary[kind.String()] = n
	}
	return summary
}

// SaveReport saves a complete audit report as JSON and returns its ID.
func (s *Store) SaveReport(ctx context.Context, report *model.ValidationReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}
	summaryJSON, _ := json.Marshal(summaryOf(report)) //nolint:errcheck,errchkjson // map of ints cannot fail

	checkedAt := report.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = s.now()
	}

	query := `
	INSERT INTO reports (document_path, fingerprint, checked_at, report_json, summary)
	VALUES (?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		report.Document.Path,
		report.Document.Fingerprint,
		checkedAt.UTC().Format(timeLayout),
		string(reportJSON),
		string(summaryJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save report: %w", err)
	}
	return res.LastInsertId()
}

// GetLatestReport retrieves the most recent report for a document.
// It returns nil without error when none exists.
func (s *Store) GetLatestReport(ctx context.Context, documentPath string) (*model.ValidationReport, error) {
	query := `
	SELECT report_json FROM reports
	WHERE document_path = ?
	ORDER BY checked_at DESC, id DESC
	LIMIT 1
	`

	return s.queryReport(ctx, query, documentPath)
}

// GetReportByID retrieves a report by its database ID.
// It returns nil without error when none exists.
func (s *Store) GetReportByID(ctx context.Context, id int64) (*model.ValidationReport, error) {
	return s.queryReport(ctx, `SELECT report_json FROM reports WHERE id = ?`, id)
}

func (s *Store) queryReport(ctx context.Context, query string, args ...any) (*model.ValidationReport, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.ValidationReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// ListDocuments returns every document with at least one stored report.
func (s *Store) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT document_path FROM reports ORDER BY document_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var documents []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, path)
	}
	return documents, rows.Err()
}

// GetHistory retrieves all reports for a document, newest first.
// Rows that fail to parse are skipped.
func (s *Store) GetHistory(ctx context.Context, documentPath string) ([]*model.ValidationReport, error) {
	query := `
	SELECT report_json FROM reports
	WHERE document_path = ?
	ORDER BY checked_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, documentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var reports []*model.ValidationReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		var report model.ValidationReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

// ReportMetadata contains summary information about a stored report.
type ReportMetadata struct {
	ID           int64
	DocumentPath string
	Fingerprint  string
	CheckedAt    time.Time

	// Summary counts links per status name plus "overflows" and "pending".
	Summary map[string]int
}

// GetHistoryWithMetadata retrieves report metadata for a document, newest first.
func (s *Store) GetHistoryWithMetadata(ctx context.Context, documentPath string) ([]ReportMetadata, error) {
	query := `
	SELECT id, document_path, fingerprint, checked_at, summary
	FROM reports
	WHERE document_path = ?
	ORDER BY checked_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, documentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var results []ReportMetadata
	for rows.Next() {
		var (
			meta        ReportMetadata
			fingerprint sql.NullString
			checkedAt   string
			summaryJSON sql.NullString
		)
		if err := rows.Scan(&meta.ID, &meta.DocumentPath, &fingerprint, &checkedAt, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.Fingerprint = fingerprint.String
		meta.CheckedAt = parseTimestamp(checkedAt)
		meta.Summary = make(map[string]int)
		if summaryJSON.Valid && summaryJSON.String != "" {
			if err := json.Unmarshal([]byte(summaryJSON.String), &meta.Summary); err != nil {
				meta.Summary = make(map[string]int)
			}
		}

		results = append(results, meta)
	}
	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
