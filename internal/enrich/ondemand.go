package enrich

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/guarzo/mltrends/internal/analysis"
	"github.com/guarzo/mltrends/internal/metrics"
	"github.com/guarzo/mltrends/internal/model"
	"github.com/guarzo/mltrends/internal/search"
)

// Status of an on-demand enrichment.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// User-facing messages for failed on-demand enrichments.
const (
	MsgSearchUnavailable = "Search temporarily unavailable. Try again in a few minutes."
	MsgEdgeBlocked       = "Search was blocked by the marketplace. Try again later."
	MsgGenericFailure    = "Could not load product data for this trend."
)

// State is the observable state of an Enricher. Data is set only on
// success and Message only on error.
type State struct {
	Status  Status                   `json:"status"`
	Data    *model.EnrichedTrendItem `json:"data,omitempty"`
	Message string                   `json:"message,omitempty"`
}

// Enricher enriches a single trend on request. It moves from idle to
// loading to success or error; success is final, error allows a retry.
type Enricher struct {
	site     string
	trend    model.TrendItem
	searcher search.Searcher
	weights  analysis.Weights
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	observers observers[State]
}

// NewEnricher creates an idle enricher for trend on site.
func NewEnricher(site string, trend model.TrendItem, searcher search.Searcher, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		site:     site,
		trend:    trend,
		searcher: searcher,
		weights:  analysis.OnDemandWeights,
		logger:   logger.With("component", "on_demand", "site", site, "keyword", trend.Keyword),
		state:    State{Status: StatusIdle},
	}
}

// State returns the current state.
func (e *Enricher) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers fn for every state change. The returned func removes it.
func (e *Enricher) Subscribe(fn func(State)) (cancel func()) {
	return e.observers.add(fn)
}

// Enrich runs the search and scoring once. Calls made while loading or
// after success return the current state without searching again.
func (e *Enricher) Enrich(ctx context.Context) State {
	e.mu.Lock()
	if e.state.Status == StatusLoading || e.state.Status == StatusSuccess {
		s := e.state
		e.mu.Unlock()
		return s
	}
	e.state = State{Status: StatusLoading}
	e.mu.Unlock()
	e.observers.notify(State{Status: StatusLoading})

	resp, err := e.searcher.Search(ctx, e.site, e.trend.Keyword, search.DefaultLimit)
	next := e.resolve(resp, err)

	e.mu.Lock()
	e.state = next
	e.mu.Unlock()
	e.observers.notify(next)

	return next
}

func (e *Enricher) resolve(resp *model.SearchResponse, err error) State {
	if err != nil {
		metrics.RecordEnrichment("on_demand", "error")
		e.logger.Warn("on-demand enrichment failed", "error", err)
		return State{Status: StatusError, Message: errorMessage(err)}
	}
	if resp == nil || len(resp.Results) == 0 {
		metrics.RecordEnrichment("on_demand", "unavailable")
		return State{Status: StatusError, Message: MsgSearchUnavailable}
	}

	item := analysis.Calculate(e.trend, resp, e.weights)
	metrics.RecordEnrichment("on_demand", "success")
	return State{Status: StatusSuccess, Data: &item}
}

func errorMessage(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "403"):
		return MsgEdgeBlocked
	case msg == "":
		return MsgGenericFailure
	default:
		return msg
	}
}

// observers is a small registry of callbacks, safe for concurrent use.
type observers[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (o *observers[T]) add(fn func(T)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(T))
	}
	id := o.next
	o.next++
	o.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers[T]) notify(v T) {
	o.mu.Lock()
	ids := make([]int, 0, len(o.fns))
	for id := range o.fns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.fns[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
