package linkcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/pdfaudit/internal/model"
)

// Cache stores link results between runs.
type Cache interface {
	// Lookup returns a stored status no older than maxAge.
	Lookup(ctx context.Context, key string, maxAge time.Duration) (model.LinkStatus, bool, error)

	// Store saves a status for key, replacing any previous one.
	Store(ctx context.Context, key string, status model.LinkStatus) error
}

// CachedChecker consults a Cache before delegating to another Checker.
// Unreachable results are not stored because they usually reflect the
// network at the time of the run rather than the link itself.
type CachedChecker struct {
	next   Checker
	cache  Cache
	maxAge time.Duration
	logger *slog.Logger
}

// NewCachedChecker wraps next with cache. A nil logger uses slog.Default().
func NewCachedChecker(next Checker, cache Cache, maxAge time.Duration, logger *slog.Logger) *CachedChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedChecker{next: next, cache: cache, maxAge: maxAge, logger: logger}
}

// Check implements Checker.
func (c *CachedChecker) Check(ctx context.Context, key string) (model.LinkStatus, error) {
	status, ok, err := c.cache.Lookup(ctx, key, c.maxAge)
	if err != nil {
		c.logger.Warn("link cache lookup failed", "url", key, "error", err)
	} else if ok && status.Terminal() {
		c.logger.Debug("link cache hit", "url", key, "status", status.Label())
		return status, nil
	}

	status, err = c.next.Check(ctx, key)
	if err != nil {
		return status, err
	}

	if status.Kind != model.StatusUnreachable {
		if err := c.cache.Store(ctx, key, status); err != nil {
			c.logger.Warn("link cache store failed", "url", key, "error", err)
		}
	}
	return status, nil
}
