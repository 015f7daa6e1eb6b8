package enrich

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guarzo/mltrends/internal/analysis"
	"github.com/guarzo/mltrends/internal/model"
)

func newTestSession(opts Options, source *fakeSource, searcher *fakeSearcher, cache EnrichmentCache) *Session {
	if opts.Site == "" {
		opts.Site = "MLA"
	}
	return NewSession(opts, source, searcher, cache, nil)
}

// progressSteps records progress each time the item count grows.
func progressSteps(s *Session) (*[]int, func()) {
	var (
		mu    sync.Mutex
		steps []int
		last  int
	)
	cancel := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(snap.Items) > last {
			last = len(snap.Items)
			steps = append(steps, snap.Progress)
		}
	})
	return &steps, cancel
}

func TestSession_CacheHitSkipsSearch(t *testing.T) {
	score := 77
	cached := []model.EnrichedTrendItem{{
		TrendItem:        model.TrendItem{Keyword: "cached", URL: "u", TrendType: model.TrendFastestGrowing},
		Products:         []model.SearchProduct{},
		TotalResults:     123,
		OpportunityScore: &score,
	}}
	cache := newFakeCache()
	cache.data["MLA"] = cached

	source := &fakeSource{items: makeTrends(5)}
	searcher := &fakeSearcher{}
	s := newTestSession(Options{}, source, searcher, cache)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := s.Snapshot()
	if !reflect.DeepEqual(snap.Items, cached) {
		t.Errorf("expected cached items verbatim, got %+v", snap.Items)
	}
	if searcher.calls.Load() != 0 || source.calls.Load() != 0 {
		t.Errorf("expected no searches or trend fetches, got %d/%d", searcher.calls.Load(), source.calls.Load())
	}
	if !snap.FromCache || snap.Loading || snap.Progress != 100 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if cache.putCount() != 0 {
		t.Error("cache hit must not write back")
	}

	if err := s.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if searcher.calls.Load() != 0 {
		t.Error("LoadMore on a cache-served session must not search")
	}
}

func TestSession_ProgressSequence(t *testing.T) {
	source := &fakeSource{items: makeTrends(5)}
	searcher := &fakeSearcher{}
	cache := newFakeCache()
	s := newTestSession(Options{Limit: 10, BatchSize: 2}, source, searcher, cache)

	steps, cancel := progressSteps(s)
	defer cancel()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if want := []int{40, 80, 100}; !reflect.DeepEqual(*steps, want) {
		t.Errorf("expected progress %v, got %v", want, *steps)
	}

	snap := s.Snapshot()
	if len(snap.Items) != 5 || snap.Loading || snap.Error != "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	for i, item := range snap.Items {
		if item.Keyword != source.items[i].Keyword {
			t.Errorf("item %d out of order: %s", i, item.Keyword)
		}
	}
	if searcher.calls.Load() != 5 {
		t.Errorf("expected 5 searches, got %d", searcher.calls.Load())
	}
	if cache.putCount() != 1 || len(cache.data["MLA"]) != 5 {
		t.Errorf("expected one cache write of 5 items, got %d writes", cache.putCount())
	}
	if snap.Requests.TotalRequests != 5 {
		t.Errorf("expected 5 tracked requests, got %+v", snap.Requests)
	}
}

func TestSession_UsesBatchWeights(t *testing.T) {
	source := &fakeSource{items: makeTrends(1)}
	s := newTestSession(Options{}, source, &fakeSearcher{}, nil)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := analysis.Calculate(source.items[0], hitResponse(source.items[0].Keyword, 5000), analysis.BatchWeights)
	if got := s.Snapshot().Items[0]; got.Score() != want.Score() {
		t.Errorf("expected batch weighted score %d, got %d", want.Score(), got.Score())
	}
}

func TestSession_PerItemFailureBecomesPlaceholder(t *testing.T) {
	source := &fakeSource{items: makeTrends(4)}
	searcher := &fakeSearcher{fn: func(ctx context.Context, keyword string) (*model.SearchResponse, error) {
		if keyword == "trend 1" {
			return nil, errors.New("search request failed: timeout")
		}
		if keyword == "trend 2" {
			return model.EmptySearchResponse(keyword, 3), nil
		}
		return hitResponse(keyword, 20000), nil
	}}
	s := newTestSession(Options{}, source, searcher, nil)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	items := s.Snapshot().Items
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}

	failed := items[1]
	if failed.Keyword != "trend 1" || failed.Score() != 0 || failed.TotalResults != 0 || len(failed.Products) != 0 || failed.OpportunityScore == nil {
		t.Errorf("expected zero-valued placeholder, got %+v", failed)
	}
	if failed.TrendType != source.items[1].TrendType {
		t.Error("placeholder must keep the trend fields")
	}

	empty := items[2]
	if empty.FreeShippingPercentage == nil {
		t.Error("zero-result response still goes through the calculator")
	}

	if items[0].Score() == 0 || items[3].Score() == 0 {
		t.Error("healthy items should be scored")
	}
	if s.Snapshot().Error != "" {
		t.Error("per-item failures must not set a session error")
	}
}

func TestSession_TrendFetchFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("trends api: status 503")}
	searcher := &fakeSearcher{}
	cache := newFakeCache()
	s := newTestSession(Options{}, source, searcher, cache)

	err := s.Load(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	snap := s.Snapshot()
	if !strings.Contains(snap.Error, "503") || snap.Loading {
		t.Errorf("expected session error and not loading, got %+v", snap)
	}
	if searcher.calls.Load() != 0 || cache.putCount() != 0 {
		t.Error("batch processing must not start when trends cannot be fetched")
	}
}

func TestSession_CacheReadErrorRecomputes(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("redis: connection refused")
	source := &fakeSource{items: makeTrends(2)}
	searcher := &fakeSearcher{}
	s := newTestSession(Options{}, source, searcher, cache)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if searcher.calls.Load() != 2 {
		t.Errorf("expected recompute on cache error, got %d searches", searcher.calls.Load())
	}
}

func TestSession_LoadMore(t *testing.T) {
	source := &fakeSource{items: makeTrends(25)}
	searcher := &fakeSearcher{}
	cache := newFakeCache()
	s := newTestSession(Options{Limit: 10, BatchSize: 3}, source, searcher, cache)
	ctx := context.Background()

	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Items) != 10 || !snap.HasMore || snap.TotalTrends != 25 {
		t.Fatalf("unexpected first page %+v", snap)
	}

	if err := s.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	snap = s.Snapshot()
	if len(snap.Items) != 20 || snap.Offset != 10 || snap.Progress != 100 {
		t.Fatalf("unexpected second page: items=%d offset=%d progress=%d", len(snap.Items), snap.Offset, snap.Progress)
	}

	if err := s.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	snap = s.Snapshot()
	if len(snap.Items) != 25 || snap.HasMore {
		t.Fatalf("unexpected last page: items=%d has_more=%v", len(snap.Items), snap.HasMore)
	}

	before := searcher.calls.Load()
	if err := s.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore at end: %v", err)
	}
	if searcher.calls.Load() != before || len(s.Snapshot().Items) != 25 {
		t.Error("LoadMore at the end must be a no-op")
	}

	if searcher.calls.Load() != 25 {
		t.Errorf("each trend should be searched once, got %d", searcher.calls.Load())
	}
	for i, item := range snap.Items {
		if item.Keyword != source.items[i].Keyword {
			t.Fatalf("item %d out of order: %s", i, item.Keyword)
		}
	}
	if cache.putCount() != 3 || len(cache.data["MLA"]) != 25 {
		t.Errorf("expected cache rewritten after every page, got %d writes", cache.putCount())
	}
}

func TestSession_LoadMoreBeforeLoadIsNoop(t *testing.T) {
	searcher := &fakeSearcher{}
	s := newTestSession(Options{}, &fakeSource{items: makeTrends(30)}, searcher, nil)

	if err := s.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if searcher.calls.Load() != 0 {
		t.Error("expected no work before the first load")
	}
}

func TestSession_Refresh(t *testing.T) {
	source := &fakeSource{items: makeTrends(15)}
	searcher := &fakeSearcher{}
	s := newTestSession(Options{Limit: 5}, source, searcher, nil)
	ctx := context.Background()

	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if len(s.Snapshot().Items) != 10 {
		t.Fatalf("expected 10 items before refresh")
	}

	source.items = makeTrends(15)[3:]
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Items) != 5 || snap.Offset != 0 || snap.Error != "" {
		t.Fatalf("unexpected snapshot after refresh: items=%d offset=%d err=%q", len(snap.Items), snap.Offset, snap.Error)
	}
	if snap.Items[0].Keyword != "trend 3" {
		t.Errorf("expected refetched trends, got %s first", snap.Items[0].Keyword)
	}
	if source.calls.Load() != 3 {
		t.Errorf("expected raw trends to be refetched, got %d fetches", source.calls.Load())
	}
}

func TestSession_RefreshConsultsCache(t *testing.T) {
	cache := newFakeCache()
	searcher := &fakeSearcher{}
	s := newTestSession(Options{Limit: 3}, &fakeSource{items: makeTrends(3)}, searcher, cache)
	ctx := context.Background()

	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if !s.Snapshot().FromCache {
		t.Error("refresh should be served by the entry the first load wrote")
	}
	if searcher.calls.Load() != 3 {
		t.Errorf("expected no new searches after refresh, got %d", searcher.calls.Load())
	}
}

func TestSession_RefreshDiscardsInFlightLoad(t *testing.T) {
	var blocking atomic.Bool
	blocking.Store(true)
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	searcher := &fakeSearcher{fn: func(ctx context.Context, keyword string) (*model.SearchResponse, error) {
		if blocking.Load() {
			started <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return hitResponse(keyword, 5000), nil
	}}
	source := &fakeSource{items: makeTrends(4)}
	s := newTestSession(Options{BatchSize: 2}, source, searcher, nil)

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()
	<-started

	blocking.Store(false)
	source.items = makeTrends(6)[2:]
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("expected ErrSuperseded from the replaced load, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("replaced load did not stop")
	}

	snap := s.Snapshot()
	if len(snap.Items) != 4 || snap.Loading || snap.Error != "" {
		t.Fatalf("unexpected snapshot after refresh: items=%d loading=%v err=%q", len(snap.Items), snap.Loading, snap.Error)
	}
	for i, item := range snap.Items {
		if want := fmt.Sprintf("trend %d", i+2); item.Keyword != want {
			t.Errorf("item %d: expected %q, got %q", i, want, item.Keyword)
		}
	}
}

func TestSession_OtherPresetsBypassCache(t *testing.T) {
	cache := newFakeCache()
	source := &fakeSource{items: makeTrends(2)}

	onDemand := newTestSession(Options{Weights: analysis.OnDemandWeights}, source, &fakeSearcher{}, cache)
	if err := onDemand.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cache.putCount() != 0 {
		t.Fatal("on-demand scores must not be written to the shared entry")
	}

	batch := newTestSession(Options{}, source, &fakeSearcher{}, cache)
	if err := batch.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := batch.Snapshot()
	if snap.FromCache {
		t.Fatal("batch session served from an entry it never wrote")
	}
	want := analysis.Calculate(snap.Items[0].TrendItem, hitResponse(snap.Items[0].Keyword, 5000), analysis.BatchWeights).Score()
	if got := snap.Items[0].Score(); got != want {
		t.Errorf("expected batch score %d, got %d", want, got)
	}
	if cache.putCount() != 1 {
		t.Fatalf("expected the batch session to fill the cache, got %d writes", cache.putCount())
	}

	searcher := &fakeSearcher{}
	again := newTestSession(Options{Weights: analysis.OnDemandWeights}, source, searcher, cache)
	if err := again.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if again.Snapshot().FromCache || searcher.calls.Load() != 2 {
		t.Errorf("on-demand session must recompute, fromCache=%v searches=%d", again.Snapshot().FromCache, searcher.calls.Load())
	}
}

func TestSession_RecoversAfterTrendError(t *testing.T) {
	source := &fakeSource{err: errors.New("unavailable")}
	s := newTestSession(Options{}, source, &fakeSearcher{}, nil)
	ctx := context.Background()

	_ = s.Load(ctx)
	if s.Snapshot().Error == "" {
		t.Fatal("expected error")
	}

	source.err = nil
	source.items = makeTrends(2)
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap := s.Snapshot(); snap.Error != "" || len(snap.Items) != 2 {
		t.Errorf("expected clean reload, got %+v", snap)
	}
}

func TestSession_CloseAbandonsInFlight(t *testing.T) {
	started := make(chan struct{}, 10)
	searcher := &fakeSearcher{fn: func(ctx context.Context, keyword string) (*model.SearchResponse, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cache := newFakeCache()
	s := newTestSession(Options{}, &fakeSource{items: makeTrends(4)}, searcher, cache)

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()

	<-started
	s.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected abandoned load to report an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("load did not stop after Close")
	}

	if len(s.Snapshot().Items) != 0 {
		t.Error("abandoned batch must not be appended")
	}
	if cache.putCount() != 0 {
		t.Error("abandoned load must not write the cache")
	}
	if err := s.Load(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSession_BatchDelay(t *testing.T) {
	delay := 30 * time.Millisecond
	s := newTestSession(Options{BatchSize: 2, BatchDelay: delay}, &fakeSource{items: makeTrends(5)}, &fakeSearcher{}, nil)

	start := time.Now()
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	elapsed := time.Since(start)

	// 3 batches, 2 pauses; no pause after the last batch.
	if elapsed < 2*delay {
		t.Errorf("expected at least %v between batches, took %v", 2*delay, elapsed)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct{ done, total, want int }{
		{2, 5, 40},
		{4, 5, 80},
		{5, 5, 100},
		{1, 3, 33},
		{2, 3, 67},
		{0, 0, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}
