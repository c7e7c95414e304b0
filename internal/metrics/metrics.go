// Package metrics exposes Prometheus collectors for the catalog pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page statuses.
const (
	PageSaved  = "saved"
	PageFailed = "failed"
)

// Record statuses.
const (
	RecordEmitted = "emitted"
	RecordSkipped = "skipped"
	RecordFailed  = "failed"
)

// Metrics bundles the collectors of one run on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	pagesFetched        *prometheus.CounterVec
	pageBytes           prometheus.Counter
	pagesParsed         prometheus.Counter
	records             *prometheus.CounterVec
	uniqueRecords       prometheus.Gauge
	rateLimitDelay      prometheus.Histogram
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New constructs and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		pagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_pages_fetched_total",
				Help: "Total number of result pages fetched, labeled by status.",
			},
			[]string{"status"},
		),
		pageBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_page_bytes_total",
				Help: "Total bytes of container markup appended to the page file.",
			},
		),
		pagesParsed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_pages_parsed_total",
				Help: "Total number of result containers parsed by the extractor.",
			},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_records_total",
				Help: "Total number of content modules processed, labeled by status.",
			},
			[]string{"status"},
		),
		uniqueRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_unique_records",
				Help: "Distinct catalog entry IDs emitted so far.",
			},
		),
		rateLimitDelay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting on the page rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
	}
	m.Registry.MustRegister(
		m.pagesFetched,
		m.pageBytes,
		m.pagesParsed,
		m.records,
		m.uniqueRecords,
		m.rateLimitDelay,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// Handler returns an http.Handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObservePage records one fetched page.
func (m *Metrics) ObservePage(status string, bytesWritten int) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(status).Inc()
	if bytesWritten > 0 {
		m.pageBytes.Add(float64(bytesWritten))
	}
}

// ObservePageParsed records one parsed container and the running unique count.
func (m *Metrics) ObservePageParsed(unique int) {
	if m == nil {
		return
	}
	m.pagesParsed.Inc()
	m.uniqueRecords.Set(float64(unique))
}

// ObserveRecord increments the record counter for status.
func (m *Metrics) ObserveRecord(status string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limiter wait.
func (m *Metrics) ObserveRateLimitDelay(d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitDelay.Observe(d.Seconds())
}

// ObserveHTTPRequest records one request served by the metrics endpoint.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
