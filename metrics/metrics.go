// Package metrics provides Prometheus metrics for a bank node.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all bank node metrics on a private registry.
type Metrics struct {
	// Counters
	CommandsTotal    *prometheus.CounterVec
	ResponsesTotal   *prometheus.CounterVec
	ProxyTotal       *prometheus.CounterVec
	ConnectionsTotal prometheus.Counter

	// Gauges
	ActiveConnections prometheus.Gauge

	// Histograms
	CommandDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	enabled  bool
}

// New creates a metrics instance. A disabled instance records nothing and
// serves an empty registry, so callers never need nil checks.
func New(enabled bool) *Metrics {
	m := &Metrics{
		enabled:  enabled,
		registry: prometheus.NewRegistry(),
	}

	if !enabled {
		return m
	}

	m.CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Name:      "commands_total",
			Help:      "Total commands dispatched by opcode",
		},
		[]string{"opcode"},
	)

	m.ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Name:      "responses_total",
			Help:      "Total responses by status",
		},
		[]string{"status"}, // "ok", "error"
	)

	m.ProxyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Name:      "proxy_hops_total",
			Help:      "Total proxy hops to peer banks by status",
		},
		[]string{"status"}, // "ok", "error"
	)

	m.ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bank",
			Name:      "connections_total",
			Help:      "Total client connections accepted",
		},
	)

	m.ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bank",
			Name:      "connections_active",
			Help:      "Currently open client sessions",
		},
	)

	m.CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bank",
			Name:      "command_duration_seconds",
			Help:      "Time spent handling a command",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
		},
		[]string{"opcode"},
	)

	m.registry.MustRegister(
		m.CommandsTotal,
		m.ResponsesTotal,
		m.ProxyTotal,
		m.ConnectionsTotal,
		m.ActiveConnections,
		m.CommandDuration,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCommand counts one dispatched command and its duration.
func (m *Metrics) RecordCommand(opcode string, duration time.Duration) {
	if m.enabled && m.CommandsTotal != nil {
		m.CommandsTotal.WithLabelValues(opcode).Inc()
		m.CommandDuration.WithLabelValues(opcode).Observe(duration.Seconds())
	}
}

// RecordResponse counts one response by outcome.
func (m *Metrics) RecordResponse(ok bool) {
	if m.enabled && m.ResponsesTotal != nil {
		status := "ok"
		if !ok {
			status = "error"
		}
		m.ResponsesTotal.WithLabelValues(status).Inc()
	}
}

// RecordProxy counts one proxy hop by outcome.
func (m *Metrics) RecordProxy(ok bool) {
	if m.enabled && m.ProxyTotal != nil {
		status := "ok"
		if !ok {
			status = "error"
		}
		m.ProxyTotal.WithLabelValues(status).Inc()
	}
}

// ConnectionOpened records an accepted client session.
func (m *Metrics) ConnectionOpened() {
	if m.enabled && m.ConnectionsTotal != nil {
		m.ConnectionsTotal.Inc()
		m.ActiveConnections.Inc()
	}
}

// ConnectionClosed records a finished client session.
func (m *Metrics) ConnectionClosed() {
	if m.enabled && m.ActiveConnections != nil {
		m.ActiveConnections.Dec()
	}
}
