package cache

import (
	"context"
	"time"

	"github.com/guarzo/mltrends/internal/metrics"
	"github.com/guarzo/mltrends/internal/model"
)

// DefaultEnrichmentTTL is how long an enriched trend list stays valid.
const DefaultEnrichmentTTL = time.Hour

// EnrichmentCache stores enriched trend lists per site.
type EnrichmentCache struct {
	store Store
	ttl   time.Duration
}

// NewEnrichmentCache wraps store. A non-positive ttl uses DefaultEnrichmentTTL.
func NewEnrichmentCache(store Store, ttl time.Duration) *EnrichmentCache {
	if ttl <= 0 {
		ttl = DefaultEnrichmentTTL
	}
	return &EnrichmentCache{store: store, ttl: ttl}
}

// Get returns the cached list for site, or nil on a miss.
func (c *EnrichmentCache) Get(ctx context.Context, site string) ([]model.EnrichedTrendItem, error) {
	var items []model.EnrichedTrendItem
	ok, err := GetJSON(ctx, c.store, EnrichedKey(site), &items)
	switch {
	case err != nil:
		metrics.RecordCacheLookup("enriched", "error")
		return nil, err
	case !ok || items == nil:
		metrics.RecordCacheLookup("enriched", "miss")
		return nil, nil
	}
	metrics.RecordCacheLookup("enriched", "hit")
	return items, nil
}

// Put replaces the cached list for site.
func (c *EnrichmentCache) Put(ctx context.Context, site string, items []model.EnrichedTrendItem) error {
	if items == nil {
		items = []model.EnrichedTrendItem{}
	}
	return SetJSON(ctx, c.store, EnrichedKey(site), items, c.ttl)
}

// Invalidate drops the cached list for site.
func (c *EnrichmentCache) Invalidate(ctx context.Context, site string) error {
	return c.store.Delete(ctx, EnrichedKey(site))
}
