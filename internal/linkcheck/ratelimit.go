package linkcheck

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter rate-limits requests per host with token buckets.
// Different hosts proceed independently; requests to one host are spaced
// out to the host's rate. A rate of zero or less means unlimited.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	override func(host string) float64
}

// NewHostLimiter creates a HostLimiter with a default rate in requests per
// second. override, if non-nil, returns a positive per-host rate that
// replaces the default, or zero to keep it.
func NewHostLimiter(rps float64, override func(host string) float64) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		override: override,
	}
}

// Wait blocks until a request to host is allowed.
// It returns an error if ctx ends first or if its deadline comes before
// the next token.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	limiter := h.limiterFor(host)
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limiter, ok := h.limiters[host]; ok {
		return limiter
	}

	rps := h.rps
	if h.override != nil {
		if r := h.override(host); r > 0 {
			rps = r
		}
	}

	var limiter *rate.Limiter
	if rps > 0 {
		// Burst 1: no bursting.
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	h.limiters[host] = limiter
	return limiter
}
