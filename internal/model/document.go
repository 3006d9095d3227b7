package model

import "math"

// Rect is an axis-aligned box in PDF user space (points, origin bottom-left).
// X0/Y0 is always the lower-left corner and X1/Y1 the upper-right corner.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// NewRect builds a Rect from two arbitrary corners.
// PDF generators frequently emit rectangles with negative width or height,
// so the corners are normalized here once instead of at every use.
func NewRect(ax, ay, bx, by float64) Rect {
	return Rect{
		X0: math.Min(ax, bx),
		Y0: math.Min(ay, by),
		X1: math.Max(ax, bx),
		Y1: math.Max(ay, by),
	}
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 {
	return r.X1 - r.X0
}

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 {
	return r.Y1 - r.Y0
}

// Contains reports whether the point lies inside the rectangle, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// Span is a horizontal interval occupied by rendered content.
type Span struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Width returns the length of the span. An empty span has zero width.
func (s Span) Width() float64 {
	if s.Right < s.Left {
		return 0
	}
	return s.Right - s.Left
}

// Empty reports whether the span covers nothing.
func (s Span) Empty() bool {
	return s.Right <= s.Left
}

// Union returns the smallest span covering both s and o.
// An empty operand is ignored.
func (s Span) Union(o Span) Span {
	if s.Empty() {
		return o
	}
	if o.Empty() {
		return s
	}
	return Span{Left: math.Min(s.Left, o.Left), Right: math.Max(s.Right, o.Right)}
}

// Document describes an opened PDF file.
// Page numbers are contiguous and start at 1.
type Document struct {
	// Path is the file path the document was opened from.
	Path string `json:"path"`

	// PageCount is the number of pages in the document.
	PageCount int `json:"page_count"`

	// Fingerprint is a content hash of the file, used to tell
	// whether two runs looked at the same bytes.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Page holds everything extracted from a single page.
// A Page is never mutated after extraction.
type Page struct {
	// Number is the 1-based physical page number.
	Number int

	// Links are the hyperlink annotations in annotation order.
	Links []Link

	// Cells are the table cells detected on the page, in drawing order.
	Cells []TableCell
}

// Link is one hyperlink annotation occurrence on a page.
type Link struct {
	// Page is the page the annotation sits on.
	Page int `json:"page"`

	// Seq is the annotation's position among the page's links.
	Seq int `json:"seq"`

	// URL is the target exactly as written in the document.
	URL string `json:"url"`

	// Area is the clickable annotation rectangle.
	Area Rect `json:"area"`
}

// TableCell is one bordered cell of a table together with the
// footprint of the content that was rendered into it.
type TableCell struct {
	// Page is the page the cell was found on.
	Page int `json:"page"`

	// Seq is the cell's position in drawing order on its page.
	Seq int `json:"seq"`

	// Box is the cell's bounding box.
	Box Rect `json:"box"`

	// Content is the horizontal extent of the text anchored in the cell.
	Content Span `json:"content"`

	// Text is the cell's text, kept for diagnostics.
	Text string `json:"text,omitempty"`
}

// ContentWidth returns the measured width of the cell's rendered content.
func (c TableCell) ContentWidth() float64 {
	return c.Content.Width()
}
