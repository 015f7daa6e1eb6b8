package concurrent

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one unit of work in a Join. Results are returned
// in input order, not completion order.
type Result[T any] struct {
	Value   T
	Err     error
	Latency time.Duration
}

// FetchFunc does the work for a single input.
type FetchFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// Join runs fn for every input concurrently and waits for all of them. A
// failing item never cancels its siblings; each error is kept on its Result.
// limit caps the number of goroutines in flight; limit <= 0 means no cap.
func Join[In, Out any](ctx context.Context, inputs []In, limit int, fn FetchFunc[In, Out]) []Result[Out] {
	results := make([]Result[Out], len(inputs))
	if len(inputs) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			start := time.Now()
			v, err := fn(ctx, in)
			results[i] = Result[Out]{Value: v, Err: err, Latency: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Chunk splits n items into consecutive [start, end) windows of size.
func Chunk(n, size int) [][2]int {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = n
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// FetchMetrics aggregates latency and error counts across joins.
type FetchMetrics struct {
	mu             sync.RWMutex
	TotalRequests  int
	SuccessfulReqs int
	FailedRequests int
	TotalLatency   time.Duration
}

// Observe folds a batch of results into the metrics.
func Observe[T any](m *FetchMetrics, results []Result[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		m.TotalRequests++
		m.TotalLatency += r.Latency
		if r.Err != nil {
			m.FailedRequests++
		} else {
			m.SuccessfulReqs++
		}
	}
}

// Snapshot is a copy of FetchMetrics without the lock.
type Snapshot struct {
	TotalRequests  int           `json:"total_requests"`
	SuccessfulReqs int           `json:"successful"`
	FailedRequests int           `json:"failed"`
	AverageLatency time.Duration `json:"average_latency_ns"`
}

// Snapshot returns a consistent copy of the metrics.
func (m *FetchMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		TotalRequests:  m.TotalRequests,
		SuccessfulReqs: m.SuccessfulReqs,
		FailedRequests: m.FailedRequests,
	}
	if m.TotalRequests > 0 {
		s.AverageLatency = m.TotalLatency / time.Duration(m.TotalRequests)
	}
	return s
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
