package trends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guarzo/mltrends/internal/cache"
	"github.com/guarzo/mltrends/internal/metrics"
	"github.com/guarzo/mltrends/internal/model"
)

// DefaultTTL is how long a raw trend list is reused before refetching.
const DefaultTTL = 30 * time.Minute

// ErrNoTrends is returned when a source answered but had nothing to offer.
var ErrNoTrends = errors.New("no trends returned")

// Source returns the current trend list for a site, with TrendType set
// from each item's position.
type Source interface {
	Fetch(ctx context.Context, site string) ([]model.TrendItem, error)
}

// CachedSource is a cache-aside wrapper around another Source.
type CachedSource struct {
	next   Source
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

var _ Source = (*CachedSource)(nil)

// NewCachedSource wraps next. Cache failures are logged and bypassed.
func NewCachedSource(next Source, store cache.Store, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{next: next, store: store, ttl: ttl, logger: logger.With("component", "trends_cache")}
}

func (c *CachedSource) Fetch(ctx context.Context, site string) ([]model.TrendItem, error) {
	key := cache.TrendsKey(site)

	var items []model.TrendItem
	ok, err := cache.GetJSON(ctx, c.store, key, &items)
	switch {
	case err != nil:
		metrics.RecordCacheLookup("trends", "error")
		c.logger.Warn("trends cache read failed", "site", site, "error", err)
	case ok && len(items) > 0:
		metrics.RecordCacheLookup("trends", "hit")
		return model.WithTrendTypes(items), nil
	default:
		metrics.RecordCacheLookup("trends", "miss")
	}

	items, err = c.next.Fetch(ctx, site)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, c.store, key, items, c.ttl); err != nil {
		c.logger.Warn("trends cache write failed", "site", site, "error", err)
	}
	return items, nil
}

// Invalidate forces the next Fetch for site to hit the underlying source.
func (c *CachedSource) Invalidate(ctx context.Context, site string) error {
	if err := c.store.Delete(ctx, cache.TrendsKey(site)); err != nil {
		return fmt.Errorf("invalidate trends %s: %w", site, err)
	}
	return nil
}

// Fallback tries primary and, when it fails, secondary.
type Fallback struct {
	Primary   Source
	Secondary Source
	Logger    *slog.Logger
}

func (f Fallback) Fetch(ctx context.Context, site string) ([]model.TrendItem, error) {
	items, err := f.Primary.Fetch(ctx, site)
	if err == nil {
		return items, nil
	}
	if ctx.Err() != nil || f.Secondary == nil {
		return nil, err
	}

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("primary trends source failed, using fallback", "site", site, "error", err)

	items, err2 := f.Secondary.Fetch(ctx, site)
	if err2 != nil {
		return nil, errors.Join(err, err2)
	}
	return items, nil
}
