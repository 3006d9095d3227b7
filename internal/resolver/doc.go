// Package resolver normalizes link targets and deduplicates them across a
// document so that each distinct URL is checked exactly once.
//
// Normalize produces the deduplication key. Index records every occurrence
// of a key (page, position, original spelling) so a single result can be
// fanned out to all of them. Results holds the terminal status per key and
// accepts writes only through InsertIfAbsent.
//
// Equivalence rules:
//   - scheme and host are case-insensitive; IDN hosts compare in punycode
//   - default ports (80 for http, 443 for https) are dropped
//   - fragments are ignored
//   - path and query are compared verbatim, including a trailing slash
package resolver
