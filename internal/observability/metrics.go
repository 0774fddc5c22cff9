// Package observability holds the Prometheus collectors exported on /metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "rag_api"

// Metrics groups the collectors of the service. Use NewMetrics with a
// dedicated registry in tests so collectors do not clash.
type Metrics struct {
	registry *prometheus.Registry

	// ArxivRequestsTotal counts outgoing arXiv calls.
	// Labels: operation (fetch, download), outcome (success, timeout, http_error, parse_error, error)
	ArxivRequestsTotal *prometheus.CounterVec

	// ArxivRequestDuration measures single attempts against arXiv.
	ArxivRequestDuration *prometheus.HistogramVec

	// ArxivRetriesTotal counts retry waits by operation.
	ArxivRetriesTotal *prometheus.CounterVec

	// ArxivRateLimitWait measures time spent waiting for the rate limiter.
	ArxivRateLimitWait prometheus.Histogram

	// PapersUpsertedTotal counts repository upserts by result (created, updated).
	PapersUpsertedTotal *prometheus.CounterVec

	// HTTPRequestsTotal counts handled API requests.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration measures API latency by route.
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		ArxivRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "arxiv",
			Name:      "requests_total",
			Help:      "Outgoing arXiv requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ArxivRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "arxiv",
			Name:      "request_duration_seconds",
			Help:      "Duration of single arXiv request attempts.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		ArxivRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "arxiv",
			Name:      "retries_total",
			Help:      "Retry waits scheduled for arXiv requests.",
		}, []string{"operation"}),
		ArxivRateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "arxiv",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for the arXiv rate limiter.",
			Buckets:   []float64{0, 0.1, 0.5, 1, 2, 3, 5, 10},
		}),
		PapersUpsertedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "papers",
			Name:      "upserted_total",
			Help:      "Papers written by upsert, by result.",
		}, []string{"result"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Handled API requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.ArxivRequestsTotal,
		m.ArxivRequestDuration,
		m.ArxivRetriesTotal,
		m.ArxivRateLimitWait,
		m.PapersUpsertedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// NewDefaultMetrics registers the collectors on a fresh registry that also
// carries the Go runtime and process collectors.
func NewDefaultMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetrics(reg)
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency per route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
