// Package overflow decides whether rendered table-cell content is wider
// than the cell that holds it. Everything here is pure and safe to call
// from any number of goroutines.
package overflow
