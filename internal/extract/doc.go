// Package extract reads hyperlink annotations and table cells out of a PDF.
//
// Open parses the file and Pages yields one model.Page per physical page.
// Links come from /Link annotations with a /URI action. Table cells are
// stroked rectangles that line up with a neighbour along a row or column;
// the text drawn inside each cell is measured so that overflow can be
// decided without rendering the page.
//
// A page that cannot be parsed is reported as an *ExtractionError and
// skipped. Only a file that cannot be opened at all is fatal.
package extract
