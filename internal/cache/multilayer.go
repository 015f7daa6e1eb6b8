package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultL1TTL bounds how long a promoted entry lives in the memory layer.
const DefaultL1TTL = 5 * time.Minute

// Layered keeps hot entries in memory in front of a slower shared store.
// Writes go to both layers; reads fall through to l2 and promote hits.
type Layered struct {
	l1    *MemoryStore
	l2    Store
	l1TTL time.Duration
	stats LayerStats
	mu    sync.Mutex
}

// LayerStats tracks hits per layer.
type LayerStats struct {
	L1Hits   int64 `json:"l1_hits"`
	L2Hits   int64 `json:"l2_hits"`
	Misses   int64 `json:"misses"`
	L2Errors int64 `json:"l2_errors"`
}

var _ Store = (*Layered)(nil)

// NewLayered wraps l2 with the memory store l1.
func NewLayered(l1 *MemoryStore, l2 Store) *Layered {
	return &Layered{l1: l1, l2: l2, l1TTL: DefaultL1TTL}
}

func (c *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if data, ok, _ := c.l1.Get(ctx, key); ok {
		c.record(func(s *LayerStats) { s.L1Hits++ })
		return data, true, nil
	}

	data, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		c.record(func(s *LayerStats) { s.L2Errors++ })
		return nil, false, err
	}
	if !ok {
		c.record(func(s *LayerStats) { s.Misses++ })
		return nil, false, nil
	}

	c.record(func(s *LayerStats) { s.L2Hits++ })
	_ = c.l1.Set(ctx, key, data, c.l1TTL)
	return data, true, nil
}

func (c *Layered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	_ = c.l1.Set(ctx, key, value, l1TTL)
	return c.l2.Set(ctx, key, value, ttl)
}

func (c *Layered) Delete(ctx context.Context, key string) error {
	_ = c.l1.Delete(ctx, key)
	return c.l2.Delete(ctx, key)
}

func (c *Layered) Close() error {
	return errors.Join(c.l1.Close(), c.l2.Close())
}

// Stats returns a copy of the hit counters.
func (c *Layered) Stats() LayerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Layered) record(fn func(*LayerStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
