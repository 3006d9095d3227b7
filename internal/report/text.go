package report

import (
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/pdfaudit/internal/model"
)

const ruleWidth = 70

// TextWriter outputs the human-readable report.
//
// The output contains no timestamps or durations, so the same document and
// the same network responses always produce the same bytes. Link lines read
// "<status>: <url> [→ <target>] (Page <n>)" and overflow lines
// "Overflow in table cell on Page <n>".
type TextWriter struct {
	baseWriter
	printer *message.Printer
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...Option) *TextWriter {
	return &TextWriter{
		baseWriter: newBaseWriter(output, opts...),
		printer:    message.NewPrinter(language.English),
	}
}

// Write outputs the report in human-readable format.
func (w *TextWriter) Write(report *model.ValidationReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeLinks(&sb, report)
	w.writeTables(&sb, report)
	w.writeSkipped(&sb, report)
	w.writeSummary(&sb, report)

	return io.WriteString(w.output, sb.String())
}

// LinkLine formats one link entry.
func LinkLine(e model.LinkEntry) string {
	var sb strings.Builder
	sb.WriteString(e.Status.Label())
	sb.WriteString(": ")
	sb.WriteString(e.URL)
	if e.Status.Kind == model.StatusRedirected {
		sb.WriteString(" → ")
		sb.WriteString(e.Status.Target)
	}
	sb.WriteString(" (Page ")
	for i, p := range e.Pages {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(p))
	}
	sb.WriteString(")")
	return sb.String()
}

// OverflowLine formats one overflow entry.
func OverflowLine(e model.OverflowEntry) string {
	return "Overflow in table cell on Page " + strconv.Itoa(e.Page)
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *TextWriter) writeHeader(sb *strings.Builder, report *model.ValidationReport) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                          PDF AUDIT REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	sb.WriteString("Document:     " + report.Document.Path + "\n")
	sb.WriteString("Pages:        " + strconv.Itoa(report.Document.PageCount) + "\n")
	if report.Document.Fingerprint != "" {
		sb.WriteString("Fingerprint:  " + report.Document.Fingerprint + "\n")
	}
	if report.Cancelled {
		sb.WriteString("Status:       CANCELLED (partial results)\n")
	} else {
		sb.WriteString("Status:       Complete\n")
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeLinks(sb *strings.Builder, report *model.ValidationReport) {
	section(sb, "LINKS")

	links := w.links(report)
	if len(links) == 0 {
		if w.onlyProblems && len(report.Links) > 0 {
			sb.WriteString("No broken links\n\n")
		} else {
			sb.WriteString("No links checked\n\n")
		}
		return
	}
	for _, e := range links {
		sb.WriteString(LinkLine(e))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeTables(sb *strings.Builder, report *model.ValidationReport) {
	section(sb, "TABLES")

	if len(report.Overflows) == 0 {
		sb.WriteString("No overflowing table cells\n\n")
		return
	}
	for _, e := range report.Overflows {
		sb.WriteString(OverflowLine(e))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeSkipped(sb *strings.Builder, report *model.ValidationReport) {
	if len(report.Skipped) == 0 {
		return
	}
	section(sb, "SKIPPED PAGES")
	for _, s := range report.Skipped {
		sb.WriteString("Skipped Page " + strconv.Itoa(s.Page) + ": " + s.Reason + "\n")
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeSummary(sb *strings.Builder, report *model.ValidationReport) {
	section(sb, "SUMMARY")

	byKind := report.CountByKind()
	c := report.Counts
	p := w.printer

	sb.WriteString(p.Sprintf("  Distinct links:     %d\n", c.Distinct))
	sb.WriteString(p.Sprintf("  Link occurrences:   %d\n", c.Occurrences))
	sb.WriteString(p.Sprintf("  Ok:                 %d\n", byKind[model.StatusOK]))
	sb.WriteString(p.Sprintf("  Redirected:         %d\n", byKind[model.StatusRedirected]))
	sb.WriteString(p.Sprintf("  Invalid:            %d\n", byKind[model.StatusInvalid]))
	sb.WriteString(p.Sprintf("  Unreachable:        %d\n", byKind[model.StatusUnreachable]))
	if c.Pending > 0 {
		sb.WriteString(p.Sprintf("  Not checked:        %d\n", c.Pending))
	}
	sb.WriteString(p.Sprintf("  Mailto links:       %d\n", c.Mailto))
	sb.WriteString(p.Sprintf("  Ignored links:      %d\n", c.Ignored))
	sb.WriteString(p.Sprintf("  Cells checked:      %d\n", c.CellsChecked))
	sb.WriteString(p.Sprintf("  Overflowing cells:  %d\n", len(report.Overflows)))
}
