package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search outcomes recorded per variant attempt.
const (
	OutcomeHit         = "hit"
	OutcomeEmpty       = "empty"
	OutcomeRateLimited = "rate_limited"
	OutcomeBlocked     = "blocked"
	OutcomeHTTPError   = "http_error"
	OutcomeTransport   = "transport_error"
)

var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mltrends_search_requests_total",
			Help: "Search requests sent to the marketplace, by site and outcome",
		},
		[]string{"site", "outcome"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mltrends_search_duration_seconds",
			Help:    "Duration of marketplace search requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"site"},
	)

	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mltrends_enrichments_total",
			Help: "Trend enrichments computed, by path and result",
		},
		[]string{"path", "result"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mltrends_cache_lookups_total",
			Help: "Cache lookups by cache name and result (hit, miss, error)",
		},
		[]string{"cache", "result"},
	)
)

// RecordSearch updates search metrics for one variant attempt.
func RecordSearch(site, outcome string, d time.Duration) {
	SearchRequestsTotal.WithLabelValues(site, outcome).Inc()
	SearchDuration.WithLabelValues(site).Observe(d.Seconds())
}

// RecordEnrichment counts one enrichment on path ("on_demand" or "batch").
func RecordEnrichment(path, result string) {
	EnrichmentsTotal.WithLabelValues(path, result).Inc()
}

// RecordCacheLookup counts one cache lookup.
func RecordCacheLookup(cache, result string) {
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// Handler exposes the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
