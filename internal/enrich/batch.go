package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/guarzo/mltrends/internal/analysis"
	"github.com/guarzo/mltrends/internal/concurrent"
	"github.com/guarzo/mltrends/internal/metrics"
	"github.com/guarzo/mltrends/internal/model"
	"github.com/guarzo/mltrends/internal/search"
	"github.com/guarzo/mltrends/internal/trends"
)

const (
	DefaultBatchSize  = 2
	DefaultBatchDelay = time.Second
	DefaultPageSize   = 10
)

var (
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSuperseded means a refresh or close replaced the running load.
	ErrSuperseded = errors.New("load superseded")
)

// EnrichmentCache stores enriched lists per site. Get returns nil on a miss;
// any non-nil slice, even empty, is a hit.
type EnrichmentCache interface {
	Get(ctx context.Context, site string) ([]model.EnrichedTrendItem, error)
	Put(ctx context.Context, site string, items []model.EnrichedTrendItem) error
}

// Options configure a batch session.
type Options struct {
	Site       string
	Limit      int
	BatchSize  int
	BatchDelay time.Duration
	Weights    analysis.Weights
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultPageSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.Weights == (analysis.Weights{}) {
		o.Weights = analysis.BatchWeights
	}
	return o
}

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	Site        string                    `json:"site"`
	Items       []model.EnrichedTrendItem `json:"items"`
	Offset      int                       `json:"offset"`
	Limit       int                       `json:"limit"`
	TotalTrends int                       `json:"total_trends"`
	Loading     bool                      `json:"loading"`
	Progress    int                       `json:"progress"`
	Error       string                    `json:"error,omitempty"`
	FromCache   bool                      `json:"from_cache"`
	HasMore     bool                      `json:"has_more"`
	Requests    concurrent.Snapshot       `json:"requests"`
}

// Session progressively enriches a site's trend list in small batches.
// Batches run one after another with BatchDelay between them; items inside
// a batch run concurrently and keep their trend order.
type Session struct {
	opts     Options
	source   trends.Source
	searcher search.Searcher
	cache    EnrichmentCache
	logger   *slog.Logger

	life   context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	items      []model.EnrichedTrendItem
	offset     int
	total      int
	loading    bool
	progress   int
	err        string
	fromCache  bool
	closed     bool
	generation uint64
	runCancel  context.CancelFunc

	fetch     concurrent.FetchMetrics
	observers observers[Snapshot]
}

// NewSession creates an idle session. cache may be nil.
func NewSession(opts Options, source trends.Source, searcher search.Searcher, cache EnrichmentCache, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	life, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:     opts,
		source:   source,
		searcher: searcher,
		cache:    cache,
		logger:   logger.With("component", "batch", "site", opts.Site),
		life:     life,
		cancel:   cancel,
		items:    []model.EnrichedTrendItem{},
	}
}

// Options returns the effective options.
func (s *Session) Options() Options { return s.opts }

// Subscribe registers fn for every state change. The returned func removes it.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	return s.observers.add(fn)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	items := make([]model.EnrichedTrendItem, len(s.items))
	copy(items, s.items)
	return Snapshot{
		Site:        s.opts.Site,
		Items:       items,
		Offset:      s.offset,
		Limit:       s.opts.Limit,
		TotalTrends: s.total,
		Loading:     s.loading,
		Progress:    s.progress,
		Error:       s.err,
		FromCache:   s.fromCache,
		HasMore:     s.hasMoreLocked(),
		Requests:    s.fetch.Snapshot(),
	}
}

func (s *Session) hasMoreLocked() bool {
	return !s.fromCache && s.offset+s.opts.Limit < s.total
}

// Load checks the enrichment cache and, on a miss, enriches the first page.
// It is a no-op while another load is running.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.err = ""
	gen := s.generation
	s.mu.Unlock()
	s.publish()

	return s.run(ctx, gen, true)
}

// LoadMore enriches the next page. It does nothing while loading, when the
// last page has been reached, or when the session was served from cache.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.loading || !s.hasMoreLocked() {
		s.mu.Unlock()
		return nil
	}
	s.advancePageLocked()
	s.loading = true
	s.err = ""
	gen := s.generation
	s.mu.Unlock()
	s.publish()

	return s.run(ctx, gen, false)
}

// Refresh drops everything enriched so far and loads from scratch. A load
// still running is cancelled and its results discarded.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	gen := s.resetLocked()
	s.loading = true
	s.mu.Unlock()
	s.publish()

	return s.run(ctx, gen, true)
}

// Close abandons in-flight work. Later calls return ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	s.loading = false
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) run(ctx context.Context, gen uint64, checkCache bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.life, cancel)
	defer stop()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return errSupersededOrClosed(s)
	}
	s.runCancel = cancel
	s.mu.Unlock()

	if checkCache && s.cacheable() {
		cached, err := s.cache.Get(ctx, s.opts.Site)
		if err != nil {
			s.logger.Warn("enrichment cache read failed, recomputing", "error", err)
		} else if cached != nil {
			s.logger.Info("serving enriched trends from cache", "items", len(cached))
			if !s.useCached(gen, cached) {
				return errSupersededOrClosed(s)
			}
			return nil
		}
	}

	return s.process(ctx, gen)
}

func (s *Session) process(ctx context.Context, gen uint64) error {
	raw, err := s.source.Fetch(ctx, s.opts.Site)
	if err != nil {
		return s.abort(gen, fmt.Errorf("fetch trends: %w", err))
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return errSupersededOrClosed(s)
	}
	s.total = len(raw)
	window := raw[:min(s.offset+s.opts.Limit, len(raw))]
	done := min(len(s.items), len(window))
	s.mu.Unlock()

	tail := window[done:]
	spans := concurrent.Chunk(len(tail), s.opts.BatchSize)
	for i, span := range spans {
		batch := tail[span[0]:span[1]]

		results := concurrent.Join(ctx, batch, 0, s.enrichOne)
		concurrent.Observe(&s.fetch, results)
		if err := ctx.Err(); err != nil {
			return s.abort(gen, err)
		}

		enriched := make([]model.EnrichedTrendItem, len(batch))
		for j, r := range results {
			if r.Err != nil {
				s.logger.Warn("trend enrichment failed, using placeholder", "keyword", batch[j].Keyword, "error", r.Err)
				metrics.RecordEnrichment("batch", "placeholder")
				enriched[j] = model.Placeholder(batch[j])
				continue
			}
			metrics.RecordEnrichment("batch", "success")
			enriched[j] = r.Value
		}

		if !s.appendBatch(gen, enriched, len(window)) {
			return errSupersededOrClosed(s)
		}

		if i < len(spans)-1 {
			if err := concurrent.Sleep(ctx, s.opts.BatchDelay); err != nil {
				return s.abort(gen, err)
			}
		}
	}

	items, ok := s.finish(gen, len(window))
	if !ok {
		return errSupersededOrClosed(s)
	}

	if s.cacheable() {
		if err := s.cache.Put(ctx, s.opts.Site, items); err != nil {
			s.logger.Warn("enrichment cache write failed", "error", err)
		}
	}
	return nil
}

// cacheable reports whether the shared enrichment cache applies. Entries are
// scored with BatchWeights, so sessions using another preset neither read
// nor write them.
func (s *Session) cacheable() bool {
	return s.cache != nil && s.opts.Weights == analysis.BatchWeights
}

func (s *Session) enrichOne(ctx context.Context, trend model.TrendItem) (model.EnrichedTrendItem, error) {
	resp, err := s.searcher.Search(ctx, s.opts.Site, trend.Keyword, search.DefaultLimit)
	if err != nil {
		return model.EnrichedTrendItem{}, err
	}
	return analysis.Calculate(trend, resp, s.opts.Weights), nil
}

// appendBatch adds one batch's results and updates progress against the
// current window size. It reports false when gen is stale.
func (s *Session) appendBatch(gen uint64, batch []model.EnrichedTrendItem, window int) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items, batch...)
	s.progress = percent(len(s.items), window)
	s.logger.Info("batch enriched", "items", len(s.items), "window", window, "progress", s.progress)
	s.mu.Unlock()
	s.publish()
	return true
}

// advancePageLocked moves the window forward by one page.
func (s *Session) advancePageLocked() {
	s.offset += s.opts.Limit
	s.progress = percent(len(s.items), min(s.offset+s.opts.Limit, s.total))
}

// resetLocked clears all accumulated state and invalidates running loads.
func (s *Session) resetLocked() uint64 {
	s.generation++
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	s.items = []model.EnrichedTrendItem{}
	s.offset = 0
	s.total = 0
	s.progress = 0
	s.err = ""
	s.fromCache = false
	return s.generation
}

func (s *Session) useCached(gen uint64, cached []model.EnrichedTrendItem) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.items = cached
	s.offset = 0
	s.total = len(cached)
	s.fromCache = true
	s.progress = 100
	s.loading = false
	s.mu.Unlock()
	s.publish()
	return true
}

func (s *Session) finish(gen uint64, window int) ([]model.EnrichedTrendItem, bool) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil, false
	}
	s.loading = false
	s.progress = percent(len(s.items), window)
	items := make([]model.EnrichedTrendItem, len(s.items))
	copy(items, s.items)
	s.mu.Unlock()
	s.publish()
	return items, true
}

// abort records err for gen. A run that was superseded or closed reports
// that instead and leaves the session state alone.
func (s *Session) abort(gen uint64, err error) error {
	s.mu.Lock()
	stale := gen != s.generation
	s.mu.Unlock()
	if stale {
		return errSupersededOrClosed(s)
	}
	s.fail(gen, err)
	return err
}

func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.loading = false
	s.err = err.Error()
	s.mu.Unlock()
	s.logger.Error("batch session failed", "error", err)
	s.publish()
}

func (s *Session) publish() {
	s.observers.notify(s.Snapshot())
}

func errSupersededOrClosed(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return ErrSuperseded
}

// percent is done/total as a whole percentage; an empty window is complete.
func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}
