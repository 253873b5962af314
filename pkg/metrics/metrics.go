// Package metrics defines the Prometheus metric collectors used by the
// decoder service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the decoder.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DecodesTotal         *prometheus.CounterVec
	DecodeLatency        prometheus.Histogram
	CubePopsTotal        prometheus.Counter
	GlueRulesTotal       prometheus.Counter
	BundlesPerNode       prometheus.Histogram
	StackSize            prometheus.Histogram
	DerivationsReturned  prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
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
		DecodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decodes_total",
				Help: "Total sentence decodes by result (ok, cached, error).",
			},
			[]string{"result"},
		),
		DecodeLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "decode_latency_seconds",
				Help:    "Single-sentence decode latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			},
		),
		CubePopsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cube_pops_total",
				Help: "Total hyperedges popped from cube-pruning queues.",
			},
		),
		GlueRulesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "glue_rules_total",
				Help: "Total glue rules synthesized for uncovered nodes.",
			},
		),
		BundlesPerNode: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bundles_per_node",
				Help:    "Hyperedge bundles retained per node after pruning.",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		StackSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stack_size",
				Help:    "Largest result stack produced during a decode.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		DerivationsReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "derivations_returned",
				Help:    "Derivations returned per decode request.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "translation_cache_hits_total",
				Help: "Total translation cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "translation_cache_misses_total",
				Help: "Total translation cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DecodesTotal,
		m.DecodeLatency,
		m.CubePopsTotal,
		m.GlueRulesTotal,
		m.BundlesPerNode,
		m.StackSize,
		m.DerivationsReturned,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
