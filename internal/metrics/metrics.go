// Package metrics provides Prometheus metrics for the card generator.
package metrics

import (
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pre-defined histogram buckets for latency metrics
var (
	// HTTPLatencyBuckets are latency buckets for full HTTP request/response cycle
	HTTPLatencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

	// RenderLatencyBuckets cover template application plus external conversion
	RenderLatencyBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}
)

// Metrics holds all Prometheus metrics for a service.
type Metrics struct {
	// HTTPRequestDuration tracks full HTTP request duration
	HTTPRequestDuration *prometheus.HistogramVec

	// InFlightRequests tracks currently processing requests
	InFlightRequests *prometheus.GaugeVec

	// RenderDuration tracks card render latency
	RenderDuration *prometheus.HistogramVec

	// RenderTotal tracks render outcomes
	RenderTotal *prometheus.CounterVec

	// MergeTotal tracks batch merge outcomes
	MergeTotal *prometheus.CounterVec

	registry *prometheus.Registry
	hostname string
}

// New creates and registers the card generator metrics on a private registry.
func New() *Metrics {
	hostname, _ := os.Hostname()

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		hostname: hostname,
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (full request/response cycle)",
				Buckets: HTTPLatencyBuckets,
			},
			[]string{"method", "endpoint", "status_code"},
		),
		InFlightRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "http_in_flight_requests",
				Help: "Number of in-flight requests",
			},
			[]string{"pod"},
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "card_render_duration_seconds",
				Help:    "Card render latency in seconds",
				Buckets: RenderLatencyBuckets,
			},
			[]string{"status"},
		),
		RenderTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "card_render_total",
				Help: "Total card renders",
			},
			[]string{"status"},
		),
		MergeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "card_merge_total",
				Help: "Total batch merges",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestDuration,
		m.InFlightRequests,
		m.RenderDuration,
		m.RenderTotal,
		m.MergeTotal,
	)

	// Pre-initialize labels
	for _, status := range []string{"success", "error"} {
		m.RenderTotal.WithLabelValues(status)
		m.RenderDuration.WithLabelValues(status)
	}
	for _, status := range []string{"success", "error", "empty"} {
		m.MergeTotal.WithLabelValues(status)
	}
	m.InFlightRequests.WithLabelValues(hostname).Set(0)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRender records one render.
func (m *Metrics) ObserveRender(status string, elapsed time.Duration) {
	m.RenderTotal.WithLabelValues(status).Inc()
	m.RenderDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveMerge records one batch merge.
func (m *Metrics) ObserveMerge(status string) {
	m.MergeTotal.WithLabelValues(status).Inc()
}

// Handler returns the fiber handler for the /metrics endpoint.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware returns middleware that tracks HTTP request metrics.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip metrics collection for /metrics endpoint
		if c.Path() == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		m.InFlightRequests.WithLabelValues(m.hostname).Inc()
		defer m.InFlightRequests.WithLabelValues(m.hostname).Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		// route template keeps label cardinality bounded
		m.HTTPRequestDuration.WithLabelValues(
			c.Method(),
			c.Route().Path,
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())

		return err
	}
}
