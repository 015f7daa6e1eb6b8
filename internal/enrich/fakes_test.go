package enrich

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/guarzo/mltrends/internal/model"
	"github.com/guarzo/mltrends/internal/testutil"
)

type fakeSource struct {
	items []model.TrendItem
	err   error
	calls atomic.Int32
}

func (f *fakeSource) Fetch(ctx context.Context, site string) ([]model.TrendItem, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeSearcher struct {
	fn    func(ctx context.Context, keyword string) (*model.SearchResponse, error)
	calls atomic.Int32
}

func (f *fakeSearcher) Search(ctx context.Context, site, keyword string, limit int) (*model.SearchResponse, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, keyword)
	}
	return hitResponse(keyword, 5000), nil
}

type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]model.EnrichedTrendItem
	puts   [][]model.EnrichedTrendItem
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]model.EnrichedTrendItem)}
}

func (f *fakeCache) Get(ctx context.Context, site string) ([]model.EnrichedTrendItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.data[site], nil
}

func (f *fakeCache) Put(ctx context.Context, site string, items []model.EnrichedTrendItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[site] = items
	f.puts = append(f.puts, items)
	return nil
}

func (f *fakeCache) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func hitResponse(keyword string, total int) *model.SearchResponse {
	return &model.SearchResponse{
		Query:  keyword,
		Paging: model.Paging{Total: total, Limit: 3},
		Results: []model.SearchProduct{
			{ID: keyword + "-1", Title: keyword, Price: 1000, SoldQuantity: 50, AvailableQuantity: 10, Shipping: model.Shipping{FreeShipping: true}},
			{ID: keyword + "-2", Title: keyword, Price: 1500, SoldQuantity: 5, AvailableQuantity: 3},
		},
	}
}

func makeTrends(n int) []model.TrendItem {
	return testutil.Trends(n)
}
