package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/pdfaudit/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing in
// pull requests and documentation reviews.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...Option) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output, opts...),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ValidationReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeLinks(md, report)
	w.writeTables(md, report)
	w.writeSkipped(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ValidationReport) {
	md.H1("PDF Audit Report")
	md.PlainText("")

	status := "✅ Complete"
	if report.Cancelled {
		status = "⚠️ Cancelled (partial results)"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Document", "`" + report.Document.Path + "`"},
			{"Pages", strconv.Itoa(report.Document.PageCount)},
			{"Fingerprint", "`" + report.Document.Fingerprint + "`"},
			{"Status", status},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.ValidationReport) {
	md.H2("Summary")
	md.PlainText("")

	byKind := report.CountByKind()
	c := report.Counts
	md.Table(markdown.TableSet{
		Header: []string{"Check", "Count"},
		Rows: [][]string{
			{"Distinct links", strconv.Itoa(c.Distinct)},
			{"Link occurrences", strconv.Itoa(c.Occurrences)},
			{"🟢 Ok", strconv.Itoa(byKind[model.StatusOK])},
			{"🔵 Redirected", strconv.Itoa(byKind[model.StatusRedirected])},
			{"🔴 Invalid", strconv.Itoa(byKind[model.StatusInvalid])},
			{"🟠 Unreachable", strconv.Itoa(byKind[model.StatusUnreachable])},
			{"Not checked", strconv.Itoa(c.Pending)},
			{"Mailto links", strconv.Itoa(c.Mailto)},
			{"Ignored links", strconv.Itoa(c.Ignored)},
			{"Cells checked", strconv.Itoa(c.CellsChecked)},
			{"**Overflowing cells**", "**" + strconv.Itoa(len(report.Overflows)) + "**"},
		},
	})
	md.PlainText("")

	if len(report.Links) > 0 {
		w.writePieChart(md, byKind)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of link statuses.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, byKind map[model.StatusKind]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Link Status Distribution"),
		piechart.WithShowData(true),
	)

	for _, kind := range []model.StatusKind{
		model.StatusOK,
		model.StatusRedirected,
		model.StatusInvalid,
		model.StatusUnreachable,
	} {
		if n := byKind[kind]; n > 0 {
			chart.LabelAndIntValue(kind.String(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.ValidationReport) {
	broken := len(report.ProblemLinks())
	switch {
	case broken > 0:
		md.Cautionf("%d broken link(s) found.", broken)
	case len(report.Overflows) > 0:
		md.Warningf("%d table cell(s) overflow their column.", len(report.Overflows))
	case report.Cancelled:
		md.Importantf("The audit was cancelled. %d link(s) were not checked.", report.Counts.Pending)
	default:
		md.Tip("No broken links or overflowing table cells.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeLinks(md *markdown.Markdown, report *model.ValidationReport) {
	md.H2("Links")
	md.PlainText("")

	links := w.links(report)
	if len(links) == 0 {
		md.PlainText("No links to show.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(links))
	for i, e := range links {
		redirect := "-"
		if e.Status.Kind == model.StatusRedirected {
			redirect = e.Status.Target
		}
		rows[i] = []string{
			joinPages(e.Pages),
			escapeCell(e.URL),
			escapeCell(redirect),
			e.Status.Label(),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Page", "Link", "Redirect", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeTables(md *markdown.Markdown, report *model.ValidationReport) {
	md.H2("Tables")
	md.PlainText("")

	if len(report.Overflows) == 0 {
		md.PlainText("No overflowing table cells.")
		md.PlainText("")
		return
	}

	items := make([]string, len(report.Overflows))
	for i, e := range report.Overflows {
		items[i] = OverflowLine(e)
		if text := strings.TrimSpace(e.Text); text != "" {
			items[i] += ": " + "`" + truncateString(text, 60) + "`"
		}
	}
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeSkipped(md *markdown.Markdown, report *model.ValidationReport) {
	if len(report.Skipped) == 0 {
		return
	}

	md.H2("Skipped Pages")
	md.PlainText("")
	items := make([]string, len(report.Skipped))
	for i, s := range report.Skipped {
		items[i] = "Page " + strconv.Itoa(s.Page) + ": " + s.Reason
	}
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [pdfaudit](https://github.com/nao1215/pdfaudit)*")
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

// escapeCell keeps pipe characters in URLs from breaking the table.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
