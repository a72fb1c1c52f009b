// Package metrics defines the Prometheus metric collectors used by the
// searcher and indexer and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for ProximityEvaluations.
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	IndexFlushesTotal    *prometheus.CounterVec
	ShardDocCount        *prometheus.GaugeVec

	ProximityEvaluations     *prometheus.CounterVec
	ProximityDuration        *prometheus.HistogramVec
	ProximityCandidates      prometheus.Histogram
	PositionsFilteredTotal   prometheus.Counter
	MatchSpansPublishedTotal *prometheus.CounterVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all collectors and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, miss, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		ShardDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_document_count",
				Help: "Number of documents per shard.",
			},
			[]string{"shard_id"},
		),
		ProximityEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proximity_evaluations_total",
				Help: "Proximity evaluations by function and outcome.",
			},
			[]string{"function", "outcome"},
		),
		ProximityDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proximity_evaluation_duration_seconds",
				Help:    "Time spent evaluating one proximity clause against one document.",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"function"},
		),
		ProximityCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "proximity_candidate_documents",
				Help:    "Candidate documents per proximity clause.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		PositionsFilteredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "proximity_positions_filtered_total",
				Help: "Positions dropped by the score filter.",
			},
		),
		MatchSpansPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "match_spans_published_total",
				Help: "Match span events published by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.IndexFlushesTotal,
		m.ShardDocCount,
		m.ProximityEvaluations,
		m.ProximityDuration,
		m.ProximityCandidates,
		m.PositionsFilteredTotal,
		m.MatchSpansPublishedTotal,
	)

	return m
}

// ObserveProximity records one clause evaluation.
func (m *Metrics) ObserveProximity(function string, matched bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeNoMatch
	if matched {
		outcome = OutcomeMatch
	}
	m.ProximityEvaluations.WithLabelValues(function, outcome).Inc()
	m.ProximityDuration.WithLabelValues(function).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
