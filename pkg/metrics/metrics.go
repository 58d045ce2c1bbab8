// Package metrics defines the Prometheus collectors used by the search and
// indexer services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every collector name.
const Namespace = "histsearch"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	SearchQueriesTotal     *prometheus.CounterVec
	SearchLatency          *prometheus.HistogramVec
	SearchResultsCount     prometheus.Histogram
	SearchPagesScanned     prometheus.Histogram
	CandidatesScoredTotal  prometheus.Counter
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	DocsIndexedTotal       *prometheus.CounterVec
	HistogramsStaleTotal   prometheus.Counter
	HistogramsRefreshTotal *prometheus.CounterVec
	EventsConsumedTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "search_queries_total",
				Help:      "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "search_latency_seconds",
				Help:      "Search query latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "search_results_count",
				Help:      "Number of positive-similarity documents per search.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		SearchPagesScanned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "search_pages_scanned",
				Help:      "Corpus pages fetched per search.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		CandidatesScoredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "search_candidates_scored_total",
				Help:      "Total histogram comparisons performed by searches.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "docs_indexed_total",
				Help:      "Total documents indexed by status.",
			},
			[]string{"status"},
		),
		HistogramsStaleTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "histograms_marked_stale_total",
				Help:      "Total histograms flagged stale by vocabulary changes.",
			},
		),
		HistogramsRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "histograms_refreshed_total",
				Help:      "Total stale histogram refreshes by status.",
			},
			[]string{"status"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "events_consumed_total",
				Help:      "Total Kafka events consumed by topic and status.",
			},
			[]string{"topic", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.SearchPagesScanned,
		m.CandidatesScoredTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.HistogramsStaleTotal,
		m.HistogramsRefreshTotal,
		m.EventsConsumedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
