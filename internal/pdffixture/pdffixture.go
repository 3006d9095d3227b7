// Package pdffixture writes small PDF documents with link annotations and
// bordered tables. Tests across the module use it to build inputs for the
// extractor instead of checking binary files into the repository.
package pdffixture

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"github.com/jung-kurt/gofpdf"
)

const (
	marginLeft = 15.0
	rowHeight  = 8.0
	linkHeight = 6.0
)

// Cell is one bordered table cell.
type Cell struct {
	// Text is drawn left-aligned inside the cell and is not wrapped or clipped.
	Text string

	// Width is the cell width in millimetres.
	Width float64

	// Font is a core font name. Empty means Helvetica.
	Font string
}

// Page describes the content of one page.
type Page struct {
	// Links are URI annotations placed top to bottom in order.
	Links []string

	// Rows are table rows drawn below the links.
	Rows [][]Cell

	// Malformed blanks one operand of the first cell border on the page,
	// so reading the page content fails. The page needs at least one row.
	Malformed bool
}

var (
	streamStart = []byte("\nstream\n")
	streamEnd   = []byte("\nendstream")
	rectOp      = []byte(" re ")
)

// Write renders pages to a PDF file at path.
func Write(path string, pages []Page) error {
	malformed := slices.ContainsFunc(pages, func(p Page) bool { return p.Malformed })

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 10)
	if malformed {
		pdf.SetCompression(false)
	}

	for _, page := range pages {
		pdf.AddPage()
		y := 20.0

		for _, url := range page.Links {
			pdf.SetFont("Helvetica", "", 10)
			pdf.Text(marginLeft, y+4, url)
			pdf.LinkString(marginLeft, y, 120, linkHeight, url)
			y += linkHeight + 2
		}

		if len(page.Rows) > 0 {
			y += 4
		}
		for _, row := range page.Rows {
			pdf.SetXY(marginLeft, y)
			for _, cell := range row {
				font := cell.Font
				if font == "" {
					font = "Helvetica"
				}
				pdf.SetFont(font, "", 10)
				pdf.CellFormat(cell.Width, rowHeight, cell.Text, "1", 0, "L", false, 0, "")
			}
			y += rowHeight
		}
	}

	if !malformed {
		return pdf.OutputFileAndClose(path)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return err
	}
	data := buf.Bytes()
	for i, page := range pages {
		if page.Malformed {
			if err := breakRect(data, i); err != nil {
				return err
			}
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// breakRect overwrites the last operand of the first "re" operator in the
// content stream of page index with spaces. Stream lengths stay the same.
// Page content streams appear in page order in uncompressed output.
func breakRect(data []byte, index int) error {
	start := 0
	for range index + 1 {
		i := bytes.Index(data[start:], streamStart)
		if i < 0 {
			return fmt.Errorf("pdffixture: content stream of page %d not found", index+1)
		}
		start += i + len(streamStart)
	}
	end := bytes.Index(data[start:], streamEnd)
	if end < 0 {
		return fmt.Errorf("pdffixture: content stream of page %d not terminated", index+1)
	}
	content := data[start : start+end]

	op := bytes.Index(content, rectOp)
	if op < 0 {
		return fmt.Errorf("pdffixture: page %d has no cell border to break", index+1)
	}
	operand := op
	for operand > 0 && content[operand-1] != ' ' {
		operand--
	}
	for i := operand; i < op; i++ {
		content[i] = ' '
	}
	return nil
}
