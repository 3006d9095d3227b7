package model

import "time"

// LinkEntry is one distinct URL in a report together with every page
// that references it.
type LinkEntry struct {
	// URL is the target as written at its first occurrence.
	URL string `json:"url"`

	// Key is the normalized URL the check was performed on.
	Key string `json:"key"`

	// Pages lists the pages referencing the URL in ascending order, without duplicates.
	Pages []int `json:"pages"`

	// Occurrences is the number of annotations pointing at the URL.
	Occurrences int `json:"occurrences"`

	// Status is the terminal outcome of the check.
	Status LinkStatus `json:"status"`
}

// FirstPage returns the lowest page referencing the entry, or 0 if none.
func (e LinkEntry) FirstPage() int {
	if len(e.Pages) == 0 {
		return 0
	}
	return e.Pages[0]
}

// OverflowEntry records a table cell whose content is wider than the cell.
type OverflowEntry struct {
	Page         int     `json:"page"`
	Seq          int     `json:"seq"`
	Box          Rect    `json:"box"`
	ContentWidth float64 `json:"content_width"`
	Text         string  `json:"text,omitempty"`
}

// SkippedPage is a page whose content could not be extracted.
type SkippedPage struct {
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}

// Counts holds totals gathered while building a report.
type Counts struct {
	// Occurrences is the number of checkable link annotations.
	Occurrences int `json:"occurrences"`

	// Distinct is the number of distinct normalized URLs.
	Distinct int `json:"distinct"`

	// Pending is the number of distinct URLs left unchecked by a cancelled run.
	Pending int `json:"pending"`

	// Mailto counts mailto: annotations, which are never fetched.
	Mailto int `json:"mailto"`

	// Ignored counts annotations excluded by scheme or configuration.
	Ignored int `json:"ignored"`

	// CellsChecked is the number of table cells run through overflow detection.
	CellsChecked int `json:"cells_checked"`
}

// ValidationReport is the ordered result of auditing one document.
// It is built once by the aggregator and read-only afterwards.
type ValidationReport struct {
	Document  Document        `json:"document"`
	CheckedAt time.Time       `json:"checked_at"`
	Links     []LinkEntry     `json:"links"`
	Overflows []OverflowEntry `json:"overflows"`
	Skipped   []SkippedPage   `json:"skipped_pages,omitempty"`
	Counts    Counts          `json:"counts"`

	// Cancelled is true when the run stopped early and the report is partial.
	Cancelled bool `json:"cancelled"`
}

// CountByKind returns the number of link entries per status kind.
func (r *ValidationReport) CountByKind() map[StatusKind]int {
	counts := make(map[StatusKind]int)
	for _, e := range r.Links {
		counts[e.Status.Kind]++
	}
	return counts
}

// ProblemLinks returns the entries whose status is a problem, in report order.
func (r *ValidationReport) ProblemLinks() []LinkEntry {
	var out []LinkEntry
	for _, e := range r.Links {
		if e.Status.Problem() {
			out = append(out, e)
		}
	}
	return out
}

// HasProblems reports whether any link is broken or any cell overflows.
func (r *ValidationReport) HasProblems() bool {
	return len(r.Overflows) > 0 || len(r.ProblemLinks()) > 0
}
