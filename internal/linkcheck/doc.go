// Package linkcheck validates hyperlinks over HTTP.
//
// Validator performs the network check for one normalized URL: HEAD first,
// GET when the server rejects HEAD, redirects followed up to the client's
// limit, each attempt bounded by its own timeout. Transient failures
// (timeouts, connection errors, 429 and 502-504) are retried with doubling
// backoff. The outcome is always a model.LinkStatus; only cancellation of
// the run produces an error, ErrAbandoned.
//
// HostLimiter spaces requests per host, and CachedChecker reuses results
// stored by a previous run.
package linkcheck
