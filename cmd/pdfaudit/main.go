// Package main provides the entry point for the pdfaudit CLI.
//
// pdfaudit audits the hyperlinks and table layout of a PDF document:
// every http(s) link annotation is checked once per distinct URL, and
// table cells whose text runs wider than the cell are reported.
//
// Usage:
//
//	pdfaudit check manual.pdf
//	pdfaudit history manual.pdf
//
// See --help for all available options.
package main

func main() {
	Execute()
}
