// Package metrics exposes the front server's prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

const namespace = "controlstock"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LegacyCommandsTotal   *prometheus.CounterVec
	LegacyCommandDuration *prometheus.HistogramVec
	BreakerState          *prometheus.GaugeVec

	CountsRegistered *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	m.LegacyCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_commands_total",
			Help:      "Commands sent to the legacy backend",
		},
		[]string{"command", "status"},
	)
	m.LegacyCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "legacy_command_duration_seconds",
			Help:      "Legacy backend round-trip time in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"command"},
	)
	m.BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "legacy_breaker_state",
			Help:      "Circuit breaker state per backend (0=closed, 1=half-open, 2=open)",
		},
		[]string{"addr"},
	)
	m.CountsRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counts_registered_total",
			Help:      "Stock count registrations by outcome",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LegacyCommandsTotal,
		m.LegacyCommandDuration,
		m.BreakerState,
		m.CountsRegistered,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// ObserveLegacy records one legacy command round trip.
func (m *Metrics) ObserveLegacy(command string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.LegacyCommandsTotal.WithLabelValues(command, status).Inc()
	m.LegacyCommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveBreaker records a breaker state change.
func (m *Metrics) ObserveBreaker(addr string, _, to gobreaker.State) {
	m.BreakerState.WithLabelValues(addr).Set(float64(to))
}

// ObserveCount records a registration outcome.
func (m *Metrics) ObserveCount(outcome string) {
	m.CountsRegistered.WithLabelValues(outcome).Inc()
}
