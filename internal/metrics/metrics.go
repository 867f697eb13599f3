// Package metrics collects Prometheus metrics and exposes them for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the HTTP middleware and the service layer report to.
type Recorder interface {
	RecordRequest(method, route string, status int, duration time.Duration)
	RecordUserWrite(op string)
	RecordAggregation(stages int)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	writes      *prometheus.CounterVec
	aggregation prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userdir_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userdir_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userdir_user_writes_total",
			Help: "Successful user writes by operation (create, update, delete).",
		}, []string{"op"}),
		aggregation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "userdir_aggregation_stages",
			Help:    "Number of stages in executed aggregation pipelines.",
			Buckets: []float64{1, 2, 3},
		}),
	}

	reg.MustRegister(c.requests, c.latency, c.writes, c.aggregation)

	return c
}

func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(route).Observe(duration.Seconds())
}

func (c *Collector) RecordUserWrite(op string) {
	c.writes.WithLabelValues(op).Inc()
}

func (c *Collector) RecordAggregation(stages int) {
	c.aggregation.Observe(float64(stages))
}

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used where metrics are not wired, e.g. in tests.
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
func (Nop) RecordUserWrite(string) {}
func (Nop) RecordAggregation(int) {}
