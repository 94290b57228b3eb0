// Package metrics defines the Prometheus collectors for index builds and
// query serving. Every helper is safe to call on a nil *Metrics so packages
// can run without a registry in tests and one-shot tools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	TermLookupsTotal     *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	DocsSkippedTotal     prometheus.Counter
	ShardsFlushedTotal   prometheus.Counter
	MergedTermsTotal     prometheus.Counter
	CorruptShardsTotal   prometheus.Counter
	BuildPhaseDuration   *prometheus.HistogramVec
	IndexReloadsTotal    *prometheus.CounterVec
	IndexedDocuments     prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		SearchQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "search_queries_total",
			Help: "Search queries by outcome (results, zero_result, error).",
		}, []string{"result_type"}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "search_latency_seconds",
			Help:    "Search latency in seconds.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"cache_status"}),
		SearchResultsCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_results_count",
			Help:    "Results returned per query.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		TermLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "search_term_lookups_total",
			Help: "Dictionary lookups by outcome (hit, miss).",
		}, []string{"outcome"}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Result cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Result cache misses.",
		}),
		DocsIndexedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docs_indexed_total",
			Help: "Crawl records assigned a doc id.",
		}),
		DocsSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docs_skipped_total",
			Help: "Crawl records skipped as malformed or empty.",
		}),
		ShardsFlushedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partial_shards_flushed_total",
			Help: "Partial shards written by ingestion workers.",
		}),
		MergedTermsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "merged_terms_total",
			Help: "Terms written to the final index.",
		}),
		CorruptShardsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corrupt_shards_total",
			Help: "Partial shards dropped from a merge as corrupt.",
		}),
		BuildPhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "index_build_phase_seconds",
			Help:    "Duration of each index build phase.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"phase"}),
		IndexReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "index_reloads_total",
			Help: "Searcher index reloads by status.",
		}, []string{"status"}),
		IndexedDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexed_documents",
			Help: "Documents in the currently served index.",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.TermLookupsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsSkippedTotal,
		m.ShardsFlushedTotal,
		m.MergedTermsTotal,
		m.CorruptShardsTotal,
		m.BuildPhaseDuration,
		m.IndexReloadsTotal,
		m.IndexedDocuments,
		m.CircuitBreakerState,
	)
	return m
}

// ObserveSearch records one served query.
func (m *Metrics) ObserveSearch(cacheStatus, resultType string, elapsed time.Duration, results int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	m.SearchResultsCount.Observe(float64(results))
}

func (m *Metrics) TermLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.TermLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	m.TermLookupsTotal.WithLabelValues("miss").Inc()
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

// ObserveIngest records the outcome of the ingestion phase.
func (m *Metrics) ObserveIngest(indexed, skipped, shards int) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Add(float64(indexed))
	m.DocsSkippedTotal.Add(float64(skipped))
	m.ShardsFlushedTotal.Add(float64(shards))
}

// ObserveMerge records the outcome of the merge phase.
func (m *Metrics) ObserveMerge(terms, corrupt int) {
	if m == nil {
		return
	}
	m.MergedTermsTotal.Add(float64(terms))
	m.CorruptShardsTotal.Add(float64(corrupt))
}

func (m *Metrics) ObservePhase(phase string, elapsed time.Duration) {
	if m != nil {
		m.BuildPhaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
	}
}

// IndexLoaded records a reload attempt and, on success, the served size.
func (m *Metrics) IndexLoaded(docs int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.IndexReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.IndexReloadsTotal.WithLabelValues("ok").Inc()
	m.IndexedDocuments.Set(float64(docs))
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	}
}

// Handler returns the scrape handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
