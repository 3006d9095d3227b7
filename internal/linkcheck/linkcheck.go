package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/pdfaudit/internal/model"
	"github.com/nao1215/pdfaudit/internal/resolver"
)

// ErrAbandoned is returned when a check stops because the run was cancelled.
// An abandoned check has no status.
var ErrAbandoned = errors.New("link check abandoned")

// maxDrain is how much of a GET body is read so the connection can be reused.
const maxDrain = 4 << 10

// Checker resolves one normalized URL to a terminal status.
type Checker interface {
	Check(ctx context.Context, key string) (model.LinkStatus, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, key string) (model.LinkStatus, error)

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, key string) (model.LinkStatus, error) {
	return f(ctx, key)
}

// Option configures a Validator.
type Option func(*Validator)

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithRetries sets the number of retries after a transient failure and the
// first backoff delay. Each further retry waits twice as long as the previous one.
func WithRetries(n int, backoff time.Duration) Option {
	return func(v *Validator) {
		v.retryDelays = RetryDelays(n, backoff)
	}
}

// WithLimiter enables per-host rate limiting.
func WithLimiter(l *HostLimiter) Option {
	return func(v *Validator) {
		v.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// RetryDelays returns n doubling delays starting at backoff.
func RetryDelays(n int, backoff time.Duration) []time.Duration {
	if n <= 0 {
		return nil
	}
	delays := make([]time.Duration, n)
	for i := range delays {
		delays[i] = backoff << i
	}
	return delays
}

// Validator checks links over HTTP.
//
// A check sends HEAD and falls back to GET when the server rejects HEAD.
// Redirects are followed by the client. Transient failures are retried with
// backoff. The result is classified as Ok, Redirected, Invalid or Unreachable.
type Validator struct {
	client      *http.Client
	timeout     time.Duration
	retryDelays []time.Duration
	limiter     *HostLimiter
	logger      *slog.Logger
}

// NewValidator creates a Validator around client. The client should not set
// its own Timeout; each attempt is bounded by the validator's timeout instead.
func NewValidator(client *http.Client, opts ...Option) *Validator {
	v := &Validator{
		client:      client,
		timeout:     10 * time.Second,
		retryDelays: RetryDelays(1, time.Second),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check implements Checker. It returns an error only when ctx ends before a
// status is known; every outcome of the network check itself is a status.
func (v *Validator) Check(ctx context.Context, key string) (model.LinkStatus, error) {
	maxAttempts := len(v.retryDelays) + 1

	var last model.LinkStatus
	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, transient, err := v.attempt(ctx, key)
		if err != nil {
			return model.Pending(), err
		}
		if !transient {
			return status, nil
		}
		last = status

		if attempt >= maxAttempts-1 {
			break
		}

		v.logger.Debug("retrying link", "url", key, "attempt", attempt+2, "status", status.Label())

		select {
		case <-ctx.Done():
			return model.Pending(), abandoned(ctx)
		case <-time.After(v.retryDelays[attempt]):
		}
	}

	return last, nil
}

// attempt performs one HEAD (and possibly GET) exchange.
func (v *Validator) attempt(ctx context.Context, key string) (model.LinkStatus, bool, error) {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx, resolver.Host(key)); err != nil {
			if ctx.Err() != nil {
				return model.LinkStatus{}, false, abandoned(ctx)
			}
			// The next token is due after the deadline.
			v.logger.Debug("rate limit wait exceeds deadline", "url", key, "error", err)
			return model.Unreachable(model.ReasonTimeout), false, nil
		}
	}

	code, final, err := v.do(ctx, http.MethodHead, key)
	if err == nil && headRejected(code) {
		v.logger.Debug("HEAD rejected, retrying with GET", "url", key, "code", code)
		code, final, err = v.do(ctx, http.MethodGet, key)
	}
	if err != nil {
		if ctx.Err() != nil {
			return model.LinkStatus{}, false, abandoned(ctx)
		}
		status, transient := classifyError(err)
		v.logger.Debug("link unreachable", "url", key, "reason", status.Reason, "error", err)
		return status, transient, nil
	}

	status, transient := classifyResponse(key, code, final)
	v.logger.Debug("link checked", "url", key, "code", code, "status", status.Label())
	return status, transient, nil
}

// do sends one request bounded by the per-attempt timeout and returns the
// final status code and URL after redirects.
func (v *Validator) do(ctx context.Context, method, key string) (int, *url.URL, error) {
	reqCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, key, nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrain)

	return resp.StatusCode, resp.Request.URL, nil
}

// headRejected reports whether a HEAD response suggests the server does not
// support HEAD rather than that the resource is missing.
func headRejected(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	default:
		return false
	}
}

// classifyResponse maps a final response to a status.
func classifyResponse(key string, code int, final *url.URL) (model.LinkStatus, bool) {
	if code >= 400 {
		return model.Invalid(code), transientCode(code)
	}
	if final == nil {
		return model.OK(), false
	}
	target := final.String()
	if normalized, err := resolver.Normalize(target); err == nil && normalized != key {
		return model.Redirected(target), false
	}
	return model.OK(), false
}

func transientCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func abandoned(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", ErrAbandoned, cause)
}
