package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/pdfaudit/internal/config"
	"github.com/nao1215/pdfaudit/internal/database"
	"github.com/nao1215/pdfaudit/internal/model"
	"github.com/nao1215/pdfaudit/internal/report"
)

// Trend values of a comparison.
const (
	trendWorsened  = "worsened"
	trendImproved  = "improved"
	trendUnchanged = "unchanged"
)

const (
	problemKindLink     = "link"
	problemKindOverflow = "overflow"
)

// NewHistoryCmd creates the history command.
// It lists stored audit runs and compares the latest run of a document
// with an earlier one.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [file.pdf]",
		Short: "Compare audit results with earlier runs",
		Long: `History shows how the problems of a document changed between audit runs.

Every 'pdfaudit check' stores its report in the history database. This command
compares the latest report of a document with the previous one and shows:
- New problems: broken links and overflowing cells that appeared
- Resolved problems: problems that are no longer present
- The number of problems present in both runs

Examples:
  # Compare the latest two runs of a document
  pdfaudit history manual.pdf

  # List all runs of a document
  pdfaudit history --list manual.pdf

  # Compare with a specific run by ID
  pdfaudit history --with-run-id 5 manual.pdf

  # Output the comparison in JSON format
  pdfaudit history --json manual.pdf

  # List all documents in the database
  pdfaudit history --list-documents`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List audit runs of the specified document")
	cmd.Flags().BoolP("list-documents", "L", false,
		"List all documents in the database")
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	listDocuments, err := cmd.Flags().GetBool("list-documents")
	if err != nil {
		return err
	}
	listRuns, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	withRunID, err := cmd.Flags().GetInt64("with-run-id")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	// Validate before opening the database so a bad invocation leaves no file behind.
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	var document string
	if !listDocuments {
		if len(args) == 0 {
			return errors.New("document path is required (use --list-documents to see available documents)")
		}
		document, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid document path: %w", err)
		}
	}

	store, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case listDocuments:
		return listStoredDocuments(ctx, store, out)
	case listRuns:
		return listRunHistory(ctx, store, document, out)
	}

	result, err := runComparison(ctx, store, document, withRunID)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		return outputComparisonJSON(out, result)
	case markdownOutput:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

// listStoredDocuments lists every document with at least one stored run.
func listStoredDocuments(ctx context.Context, store *database.Store, out io.Writer) error {
	documents, err := store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(documents) == 0 {
		fmt.Fprintln(out, "No audited documents found in the database.")
		fmt.Fprintln(out, "\nUse 'pdfaudit check <file.pdf>' to audit a document.")
		return nil
	}

	fmt.Fprintf(out, "Audited documents (%d):\n\n", len(documents))
	for _, doc := range documents {
		fmt.Fprintf(out, "  • %s\n", doc)
	}
	fmt.Fprintln(out, "\nUse 'pdfaudit history --list <file.pdf>' to see the runs of a document.")

	return nil
}

// listRunHistory lists the stored runs of document, newest first.
func listRunHistory(ctx context.Context, store *database.Store, document string, out io.Writer) error {
	runs, err := store.GetHistoryWithMetadata(ctx, document)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No history found for %s\n", document)
		fmt.Fprintln(out, "\nUse 'pdfaudit check' to audit this document.")
		return nil
	}

	fmt.Fprintf(out, "History of %s (%d runs):\n\n", document, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-16s  %s\n", "ID", "Date", "Fingerprint", "Summary")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))

	for _, meta := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-16s  %s\n",
			meta.ID,
			meta.CheckedAt.Format("2006-01-02 15:04:05"),
			meta.Fingerprint,
			formatSummary(meta.Summary),
		)
	}

	fmt.Fprintln(out, "\nUse 'pdfaudit history <file.pdf>' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'pdfaudit history --with-run-id <id> <file.pdf>' to compare with a specific run.")

	return nil
}

// formatSummary formats a stored summary map as a short status line.
func formatSummary(summary map[string]int) string {
	if summary == nil {
		return "N/A"
	}

	var parts []string
	for _, item := range []struct {
		key   string
		label string
	}{
		{model.StatusOK.String(), "ok"},
		{model.StatusRedirected.String(), "redirected"},
		{model.StatusInvalid.String(), "invalid"},
		{model.StatusUnreachable.String(), "unreachable"},
		{"overflows", "overflows"},
		{"pending", "not checked"},
	} {
		if v := summary[item.key]; v > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", item.label, v))
		}
	}

	if len(parts) == 0 {
		return "No links or tables"
	}
	return strings.Join(parts, " ")
}

// runComparison compares the latest run of document with the previous run,
// or with the run withRunID when it is positive.
func runComparison(ctx context.Context, store *database.Store, document string, withRunID int64) (*ComparisonResult, error) {
	runs, err := store.GetHistoryWithMetadata(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	if len(runs) == 0 {
		return nil, fmt.Errorf("no history found for %s", document)
	}
	if len(runs) < 2 && withRunID == 0 {
		return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
	}

	currentMeta := runs[0]
	previousMeta := runs[min(1, len(runs)-1)]
	if withRunID > 0 {
		idx := slices.IndexFunc(runs, func(m database.ReportMetadata) bool {
			return m.ID == withRunID
		})
		if idx < 0 {
			return nil, fmt.Errorf("run with ID %d not found for %s", withRunID, document)
		}
		if idx == 0 {
			return nil, fmt.Errorf("run %d is the latest run; choose an earlier run to compare with", withRunID)
		}
		previousMeta = runs[idx]
	}

	current, err := store.GetReportByID(ctx, currentMeta.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", currentMeta.ID, err)
	}
	previous, err := store.GetReportByID(ctx, previousMeta.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", previousMeta.ID, err)
	}
	if current == nil || previous == nil {
		return nil, fmt.Errorf("stored report missing for %s", document)
	}

	result := compareReports(previous, current)
	result.PreviousRun.ID = previousMeta.ID
	result.CurrentRun.ID = currentMeta.ID
	return result, nil
}

// ComparisonResult holds the result of comparing two audit reports of the
// same document.
type ComparisonResult struct {
	Document string `json:"document"`

	PreviousRun RunSummary `json:"previous_run"`
	CurrentRun  RunSummary `json:"current_run"`

	// DocumentChanged is true when the two runs looked at different file contents.
	DocumentChanged bool `json:"document_changed"`

	NewProblems      []Problem `json:"new_problems,omitempty"`
	ResolvedProblems []Problem `json:"resolved_problems,omitempty"`

	// UnchangedCount is the number of problems present in both runs.
	UnchangedCount int `json:"unchanged_count"`

	// Trend is "improved", "worsened", or "unchanged".
	Trend string `json:"trend"`
}

// RunSummary describes one side of a comparison.
type RunSummary struct {
	ID          int64     `json:"id"`
	CheckedAt   time.Time `json:"checked_at"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Cancelled   bool      `json:"cancelled,omitempty"`

	Links          int `json:"links"`
	BrokenLinks    int `json:"broken_links"`
	OverflowCells  int `json:"overflow_cells"`
	TotalProblems  int `json:"total_problems"`
	UncheckedLinks int `json:"unchecked_links"`
}

// Problem is a broken link or an overflowing cell as shown in a comparison.
type Problem struct {
	Kind        string `json:"kind"`
	Page        int    `json:"page"`
	Description string `json:"description"`

	key string
}

func summarizeRun(r *model.ValidationReport) RunSummary {
	broken := len(r.ProblemLinks())
	return RunSummary{
		CheckedAt:      r.CheckedAt,
		Fingerprint:    r.Document.Fingerprint,
		Cancelled:      r.Cancelled,
		Links:          len(r.Links),
		BrokenLinks:    broken,
		OverflowCells:  len(r.Overflows),
		TotalProblems:  broken + len(r.Overflows),
		UncheckedLinks: r.Counts.Pending,
	}
}

// problemsOf lists the problems of a report.
// A link whose failure changed, e.g. from Invalid(404) to Invalid(410), counts
// as one problem resolved and one new.
func problemsOf(r *model.ValidationReport) []Problem {
	var problems []Problem
	for _, e := range r.ProblemLinks() {
		problems = append(problems, Problem{
			Kind:        problemKindLink,
			Page:        e.FirstPage(),
			Description: report.LinkLine(e),
			key:         problemKindLink + "|" + e.Key + "|" + e.Status.Label(),
		})
	}
	for _, o := range r.Overflows {
		desc := report.OverflowLine(o)
		if o.Text != "" {
			desc += ": " + strconv.Quote(o.Text)
		}
		problems = append(problems, Problem{
			Kind:        problemKindOverflow,
			Page:        o.Page,
			Description: desc,
			key: fmt.Sprintf("%s|%d|%.0f,%.0f,%.0f,%.0f|%s", problemKindOverflow,
				o.Page, o.Box.X0, o.Box.Y0, o.Box.X1, o.Box.Y1, o.Text),
		})
	}
	return problems
}

// compareReports compares two reports and generates a comparison result.
func compareReports(previous, current *model.ValidationReport) *ComparisonResult {
	result := &ComparisonResult{
		Document:    current.Document.Path,
		PreviousRun: summarizeRun(previous),
		CurrentRun:  summarizeRun(current),
	}
	result.DocumentChanged = previous.Document.Fingerprint != current.Document.Fingerprint

	previousKeys := make(map[string]bool)
	for _, p := range problemsOf(previous) {
		previousKeys[p.key] = true
	}
	currentKeys := make(map[string]bool)
	for _, p := range problemsOf(current) {
		currentKeys[p.key] = true
		if previousKeys[p.key] {
			result.UnchangedCount++
		} else {
			result.NewProblems = append(result.NewProblems, p)
		}
	}
	for _, p := range problemsOf(previous) {
		if !currentKeys[p.key] {
			result.ResolvedProblems = append(result.ResolvedProblems, p)
		}
	}

	sortProblems(result.NewProblems)
	sortProblems(result.ResolvedProblems)

	result.Trend = calculateTrend(result.PreviousRun, result.CurrentRun)
	return result
}

func sortProblems(problems []Problem) {
	slices.SortStableFunc(problems, func(a, b Problem) int {
		return cmp.Or(
			cmp.Compare(a.Page, b.Page),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Description, b.Description),
		)
	})
}

// calculateTrend compares problem totals. Broken links weigh more than
// overflowing cells because they break the reader's path through the document.
func calculateTrend(previous, current RunSummary) string {
	previousScore := previous.BrokenLinks*10 + previous.OverflowCells
	currentScore := current.BrokenLinks*10 + current.OverflowCells

	switch {
	case currentScore < previousScore:
		return trendImproved
	case currentScore > previousScore:
		return trendWorsened
	default:
		return trendUnchanged
	}
}

func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)

	md.H1("Audit Comparison")
	md.PlainText("")
	md.PlainTextf("**Document:** `%s`", result.Document)
	md.PlainText("")
	md.PlainTextf("**Status:** %s", formatTrend(result.Trend))
	md.PlainText("")

	changed := "no"
	if result.DocumentChanged {
		changed = "yes"
	}

	prev, cur := result.PreviousRun, result.CurrentRun
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run", "#" + strconv.FormatInt(prev.ID, 10), "#" + strconv.FormatInt(cur.ID, 10), "-"},
			{"Date", prev.CheckedAt.Format("2006-01-02 15:04"), cur.CheckedAt.Format("2006-01-02 15:04"), "-"},
			{"Document changed", "-", "-", changed},
			{"Links", strconv.Itoa(prev.Links), strconv.Itoa(cur.Links), formatDelta(cur.Links - prev.Links)},
			{"Broken links", strconv.Itoa(prev.BrokenLinks), strconv.Itoa(cur.BrokenLinks), formatDelta(cur.BrokenLinks - prev.BrokenLinks)},
			{"Overflowing cells", strconv.Itoa(prev.OverflowCells), strconv.Itoa(cur.OverflowCells), formatDelta(cur.OverflowCells - prev.OverflowCells)},
			{"**Total**", "**" + strconv.Itoa(prev.TotalProblems) + "**", "**" + strconv.Itoa(cur.TotalProblems) + "**", "**" + formatDelta(cur.TotalProblems-prev.TotalProblems) + "**"},
		},
	})
	md.PlainText("")

	if prev.Cancelled || cur.Cancelled {
		md.Important("At least one of the runs was cancelled, so some links were not checked.")
		md.PlainText("")
	}

	if len(result.NewProblems) > 0 {
		md.H2f("New Problems (%d)", len(result.NewProblems))
		md.PlainText("")
		items := make([]string, 0, len(result.NewProblems))
		for _, p := range result.NewProblems {
			items = append(items, "**["+p.Kind+"]** "+p.Description)
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(result.ResolvedProblems) > 0 {
		md.H2f("Resolved Problems (%d)", len(result.ResolvedProblems))
		md.PlainText("")
		items := make([]string, 0, len(result.ResolvedProblems))
		for _, p := range result.ResolvedProblems {
			items = append(items, "~~**["+p.Kind+"]** "+p.Description+"~~")
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if result.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText("")
		md.PlainTextf("*%d problems unchanged*", result.UnchangedCount)
	}

	return md.Build()
}

func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Audit Comparison: %s\n", result.Document)
	sb.WriteString(strings.Repeat("=", 60) + "\n")

	fmt.Fprintf(&sb, "\nStatus: %s\n", formatTrend(result.Trend))

	prev, cur := result.PreviousRun, result.CurrentRun
	fmt.Fprintf(&sb, "\nPrevious run: #%d %s\n", prev.ID, prev.CheckedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Current run:  #%d %s\n", cur.ID, cur.CheckedAt.Format("2006-01-02 15:04:05"))
	if result.DocumentChanged {
		sb.WriteString("Document changed between runs.\n")
	} else {
		sb.WriteString("Document unchanged between runs.\n")
	}

	sb.WriteString("\nProblems Summary:\n")
	fmt.Fprintf(&sb, "  %-18s  %-10s  %-10s  %-10s\n", "Check", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 54) + "\n")
	for _, row := range []struct {
		label     string
		prev, cur int
	}{
		{"Links", prev.Links, cur.Links},
		{"Broken links", prev.BrokenLinks, cur.BrokenLinks},
		{"Overflowing cells", prev.OverflowCells, cur.OverflowCells},
	} {
		fmt.Fprintf(&sb, "  %-18s  %-10d  %-10d  %-10s\n", row.label, row.prev, row.cur, formatDelta(row.cur-row.prev))
	}
	sb.WriteString("  " + strings.Repeat("-", 54) + "\n")
	fmt.Fprintf(&sb, "  %-18s  %-10d  %-10d  %-10s\n", "Total",
		prev.TotalProblems, cur.TotalProblems, formatDelta(cur.TotalProblems-prev.TotalProblems))

	if len(result.NewProblems) > 0 {
		fmt.Fprintf(&sb, "\nNew Problems (%d):\n", len(result.NewProblems))
		for _, p := range result.NewProblems {
			fmt.Fprintf(&sb, "  [+] %s\n", p.Description)
		}
	}

	if len(result.ResolvedProblems) > 0 {
		fmt.Fprintf(&sb, "\nResolved Problems (%d):\n", len(result.ResolvedProblems))
		for _, p := range result.ResolvedProblems {
			fmt.Fprintf(&sb, "  [-] %s\n", p.Description)
		}
	}

	if result.UnchangedCount > 0 {
		fmt.Fprintf(&sb, "\nUnchanged: %d problems\n", result.UnchangedCount)
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func formatTrend(trend string) string {
	switch trend {
	case trendImproved:
		return "IMPROVED (fewer problems)"
	case trendWorsened:
		return "WORSENED (more problems)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
