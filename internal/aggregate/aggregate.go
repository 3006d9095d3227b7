// Package aggregate merges the results of a run into a ValidationReport
// ordered by document position, independent of the order in which
// concurrent checks finished.
package aggregate

import (
	"cmp"
	"slices"
	"time"

	"github.com/nao1215/pdfaudit/internal/model"
	"github.com/nao1215/pdfaudit/internal/resolver"
)

// Input is everything collected during a run.
type Input struct {
	Document model.Document

	// Index and Results hold link occurrences and their terminal statuses.
	// Either may be nil when link checks were not run.
	Index   *resolver.Index
	Results *resolver.Results

	// Overflows are the overflowing cells in any order.
	Overflows []model.OverflowEntry

	// Skipped are pages that could not be extracted.
	Skipped []model.SkippedPage

	// Mailto, Ignored and CellsChecked are copied into the report counts.
	Mailto       int
	Ignored      int
	CellsChecked int

	Cancelled bool
	CheckedAt time.Time
}

// sortKey positions a link entry at its first occurrence in the document.
type sortKey struct {
	page  int
	seq   int
	order int
}

// Build produces the report. Links without a terminal result (left pending
// by a cancelled run) are counted but not listed.
func Build(in Input) *model.ValidationReport {
	report := &model.ValidationReport{
		Document:  in.Document,
		CheckedAt: in.CheckedAt,
		Links:     []model.LinkEntry{},
		Overflows: []model.OverflowEntry{},
		Cancelled: in.Cancelled,
		Counts: model.Counts{
			Mailto:       in.Mailto,
			Ignored:      in.Ignored,
			CellsChecked: in.CellsChecked,
		},
	}

	if in.Index != nil {
		report.Counts.Occurrences = in.Index.OccurrenceCount()
		report.Counts.Distinct = in.Index.Len()
		report.Links, report.Counts.Pending = linkEntries(in.Index, in.Results)
	}

	report.Overflows = append(report.Overflows, in.Overflows...)
	slices.SortStableFunc(report.Overflows, func(a, b model.OverflowEntry) int {
		return cmp.Or(cmp.Compare(a.Page, b.Page), cmp.Compare(a.Seq, b.Seq))
	})

	if len(in.Skipped) > 0 {
		report.Skipped = slices.Clone(in.Skipped)
		slices.SortStableFunc(report.Skipped, func(a, b model.SkippedPage) int {
			return cmp.Compare(a.Page, b.Page)
		})
	}

	return report
}

func linkEntries(ix *resolver.Index, results *resolver.Results) ([]model.LinkEntry, int) {
	type positioned struct {
		entry model.LinkEntry
		key   sortKey
	}

	var (
		items   []positioned
		pending int
	)
	for order, key := range ix.Keys() {
		var status model.LinkStatus
		ok := false
		if results != nil {
			status, ok = results.Get(key)
		}
		if !ok {
			pending++
			continue
		}

		occ := ix.Occurrences(key)
		entry := model.LinkEntry{
			URL:         occ[0].URL,
			Key:         key,
			Pages:       pagesOf(occ),
			Occurrences: len(occ),
			Status:      status,
		}
		items = append(items, positioned{entry: entry, key: firstPosition(occ, order)})
	}

	slices.SortStableFunc(items, func(a, b positioned) int {
		return cmp.Or(
			cmp.Compare(a.key.page, b.key.page),
			cmp.Compare(a.key.seq, b.key.seq),
			cmp.Compare(a.key.order, b.key.order),
		)
	})

	entries := make([]model.LinkEntry, len(items))
	for i, it := range items {
		entries[i] = it.entry
	}
	return entries, pending
}

// pagesOf returns the distinct pages of occ in ascending order.
func pagesOf(occ []resolver.Occurrence) []int {
	pages := make([]int, 0, len(occ))
	for _, o := range occ {
		pages = append(pages, o.Page)
	}
	slices.Sort(pages)
	return slices.Compact(pages)
}

// firstPosition returns the earliest (page, seq) among occ.
func firstPosition(occ []resolver.Occurrence, order int) sortKey {
	k := sortKey{page: occ[0].Page, seq: occ[0].Seq, order: order}
	for _, o := range occ[1:] {
		if o.Page < k.page || (o.Page == k.page && o.Seq < k.seq) {
			k.page, k.seq = o.Page, o.Seq
		}
	}
	return k
}
