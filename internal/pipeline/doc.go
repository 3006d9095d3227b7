// Package pipeline runs an audit as a sequence of steps and provides the
// adaptive worker pool the checks run on.
//
// The default pipeline has three steps. ExtractStep reads the document and
// deduplicates its links, CheckStep validates links and table cells
// concurrently, and AggregateStep orders the results into a report.
// AggregateStep is a final step: it runs even after cancellation, so an
// interrupted audit still produces a partial report.
//
// The pool size is chosen by WorkerCount from the document's page count
// and fixed bounds. Tasks run on an errgroup with SetLimit; completion
// events are delivered to an optional progress callback from a separate
// goroutine.
package pipeline
