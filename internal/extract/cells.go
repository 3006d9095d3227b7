package extract

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/nao1215/pdfaudit/internal/model"
)

const (
	// snapTolerance is how far apart two edges may be and still count as shared.
	snapTolerance = 3.0

	// minCellSize excludes hairlines and underlines drawn as thin rectangles.
	minCellSize = 4.0

	// frameRatio marks rectangles covering most of the page as frames, not cells.
	frameRatio = 0.9

	// baselineTolerance is the vertical distance under which glyphs share a baseline.
	baselineTolerance = 2.0

	// joinGap is the horizontal distance under which glyphs belong to one run.
	joinGap = 2.0

	// fallbackAdvance is the glyph width in ems assumed when the font has no widths.
	fallbackAdvance = 0.5

	// midlineRatio places a run's vertical midpoint above its baseline, in font sizes.
	midlineRatio = 0.3
)

// pageCells finds table cells on a page and measures the text inside them.
func pageCells(p pdf.Page, pageNum int, ignoreFonts []string) []model.TableCell {
	content := p.Content()

	boxes := tableBoxes(content.Rect, mediaBox(p))
	if len(boxes) == 0 {
		return nil
	}

	cells := make([]model.TableCell, len(boxes))
	for i, box := range boxes {
		cells[i] = model.TableCell{Page: pageNum, Seq: i, Box: box}
	}

	texts := make([]string, len(boxes))
	for _, run := range textRuns(content.Text, ignoreFonts) {
		i := cellFor(boxes, run)
		if i < 0 {
			continue
		}
		cells[i].Content = cells[i].Content.Union(model.Span{Left: run.x0, Right: run.x1})
		if texts[i] != "" {
			texts[i] += " "
		}
		texts[i] += strings.TrimSpace(run.text.String())
	}
	for i := range cells {
		cells[i].Text = texts[i]
	}

	return cells
}

// tableBoxes returns the rectangles that form tables, in drawing order.
// A rectangle is a cell when another rectangle shares its row (same top and
// bottom, touching left or right) or its column (same left and right,
// touching above or below).
func tableBoxes(raw []pdf.Rect, page model.Rect) []model.Rect {
	var candidates []model.Rect
	seen := make(map[model.Rect]bool)
	for _, r := range raw {
		box := model.NewRect(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
		if box.Width() < minCellSize || box.Height() < minCellSize {
			continue
		}
		if isFrame(box, page) {
			continue
		}
		key := roundRect(box)
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, box)
	}

	var cells []model.Rect
	for i, a := range candidates {
		for j, b := range candidates {
			if i != j && (sharesRow(a, b) || sharesColumn(a, b)) {
				cells = append(cells, a)
				break
			}
		}
	}
	return cells
}

func isFrame(box, page model.Rect) bool {
	if page.Width() <= 0 || page.Height() <= 0 {
		return false
	}
	return box.Width() >= frameRatio*page.Width() && box.Height() >= frameRatio*page.Height()
}

func roundRect(r model.Rect) model.Rect {
	round := func(v float64) float64 { return math.Round(v*100) / 100 }
	return model.Rect{X0: round(r.X0), Y0: round(r.Y0), X1: round(r.X1), Y1: round(r.Y1)}
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= snapTolerance
}

func sharesRow(a, b model.Rect) bool {
	return near(a.Y0, b.Y0) && near(a.Y1, b.Y1) && (near(a.X1, b.X0) || near(b.X1, a.X0))
}

func sharesColumn(a, b model.Rect) bool {
	return near(a.X0, b.X0) && near(a.X1, b.X1) && (near(a.Y1, b.Y0) || near(b.Y1, a.Y0))
}

// run is a horizontal stretch of glyphs on one baseline.
type run struct {
	x0, x1 float64
	y      float64
	size   float64
	text   strings.Builder
}

// textRuns joins glyphs into runs. Glyphs in ignored fonts end the current run
// and are dropped.
//
// Fonts without a width table report zero-width glyphs that never advance the
// text position. Such glyphs are laid out from a virtual cursor using an
// estimated advance so a run still covers the width it occupies on paper.
func textRuns(glyphs []pdf.Text, ignoreFonts []string) []*run {
	var (
		runs  []*run
		cur   *run
		prevX = math.NaN()
	)

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if ignoredFont(g.Font, ignoreFonts) {
			cur = nil
			prevX = math.NaN()
			continue
		}

		width := g.W
		if width <= 0 {
			width = float64(utf8.RuneCountInString(g.S)) * g.FontSize * fallbackAdvance
		}

		x := g.X
		stalled := g.W <= 0 && g.X == prevX
		if cur != nil && stalled && math.Abs(g.Y-cur.y) < baselineTolerance {
			x = cur.x1
		}
		prevX = g.X

		if cur != nil && math.Abs(g.Y-cur.y) < baselineTolerance && math.Abs(x-cur.x1) < joinGap {
			cur.x1 = math.Max(cur.x1, x+width)
			cur.text.WriteString(g.S)
			continue
		}

		cur = &run{x0: x, x1: x + width, y: g.Y, size: g.FontSize}
		cur.text.WriteString(g.S)
		runs = append(runs, cur)
	}

	return runs
}

func ignoredFont(font string, fragments []string) bool {
	if len(fragments) == 0 {
		return false
	}
	f := strings.ToLower(font)
	for _, frag := range fragments {
		if strings.Contains(f, frag) {
			return true
		}
	}
	return false
}

// cellFor returns the index of the smallest box that contains the run's
// starting point and vertical midpoint, or -1.
func cellFor(boxes []model.Rect, r *run) int {
	mid := r.y + midlineRatio*r.size
	best := -1
	bestArea := math.Inf(1)
	for i, b := range boxes {
		if r.x0 < b.X0-joinGap || r.x0 >= b.X1 || mid < b.Y0 || mid > b.Y1 {
			continue
		}
		if area := b.Width() * b.Height(); area < bestArea {
			best, bestArea = i, area
		}
	}
	return best
}
