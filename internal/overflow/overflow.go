package overflow

import (
	"math"

	"github.com/nao1215/pdfaudit/internal/model"
)

// DefaultTolerance absorbs rounding noise from the rendering engine, in points.
const DefaultTolerance = 2.0

// Exceeds reports whether contentWidth is wider than boxWidth by more than tolerance.
func Exceeds(boxWidth, contentWidth, tolerance float64) bool {
	return contentWidth-boxWidth > math.Abs(tolerance)
}

// Overhang returns how far the content extends past the left and right
// edges of the cell box. Content inside an edge gives zero for that edge.
func Overhang(cell model.TableCell) (left, right float64) {
	if cell.Content.Empty() {
		return 0, 0
	}
	left = math.Max(0, cell.Box.X0-cell.Content.Left)
	right = math.Max(0, cell.Content.Right-cell.Box.X1)
	return left, right
}

// Detect reports whether the cell's content overflows its box.
// Each edge is compared against the tolerance on its own, so a small
// overhang on both sides is not added up into an overflow.
// It is a pure function of its arguments.
func Detect(cell model.TableCell, tolerance float64) bool {
	width := cell.Box.Width()
	left, right := Overhang(cell)
	return Exceeds(width, width+left, tolerance) || Exceeds(width, width+right, tolerance)
}

// Result is the outcome of checking one cell.
type Result struct {
	Cell     model.TableCell
	Overflow bool
}

// Check runs Detect and packages the outcome.
func Check(cell model.TableCell, tolerance float64) Result {
	return Result{Cell: cell, Overflow: Detect(cell, tolerance)}
}

// Entry converts an overflowing result into a report entry.
func (r Result) Entry() model.OverflowEntry {
	return model.OverflowEntry{
		Page:         r.Cell.Page,
		Seq:          r.Cell.Seq,
		Box:          r.Cell.Box,
		ContentWidth: r.Cell.ContentWidth(),
		Text:         r.Cell.Text,
	}
}
