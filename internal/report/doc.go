// Package report renders a ValidationReport.
//
// Three writers implement Writer:
//   - TextWriter: the default terminal format, byte-stable for golden tests
//   - JSONWriter and FullJSONWriter: structured output for tool integration
//   - MarkdownWriter: tables and a status chart for sharing
//
// WithOnlyProblems hides links whose status is Ok or Redirected in every format.
package report
