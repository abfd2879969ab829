// Package metrics exposes Prometheus metrics for the session relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeParseError  = "parse_error"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsCreatedTotal prometheus.Counter
	SessionsEndedTotal   prometheus.Counter
	SessionsOpen         prometheus.Gauge

	// Message metrics
	MessagesAppendedTotal *prometheus.CounterVec

	// Relay metrics
	RelayRequestsTotal   *prometheus.CounterVec
	RelayRequestDuration prometheus.Histogram
	RelayRetriesTotal    prometheus.Counter

	// Live feed metrics
	StreamConnections prometheus.Gauge
}

// NewMetrics creates and registers all metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsEndedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_ended_total",
				Help: "Total number of end-session calls that succeeded",
			},
		),
		SessionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_open",
				Help: "Number of sessions currently open",
			},
		),

		MessagesAppendedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_appended_total",
				Help: "Total number of messages appended to session logs",
			},
			[]string{"sender"},
		),

		RelayRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_requests_total",
				Help: "Total number of completion relay calls by outcome",
			},
			[]string{"outcome"},
		),
		RelayRequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_request_duration_seconds",
				Help:    "Duration of completion relay calls in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
		),
		RelayRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_retries_total",
				Help: "Total number of upstream retry attempts",
			},
		),

		StreamConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stream_connections",
				Help: "Number of live feed websocket connections",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry.
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.SessionsCreatedTotal)
	m.registry.MustRegister(m.SessionsEndedTotal)
	m.registry.MustRegister(m.SessionsOpen)
	m.registry.MustRegister(m.MessagesAppendedTotal)
	m.registry.MustRegister(m.RelayRequestsTotal)
	m.registry.MustRegister(m.RelayRequestDuration)
	m.registry.MustRegister(m.RelayRetriesTotal)
	m.registry.MustRegister(m.StreamConnections)
}

// SessionCreated records a new open session.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreatedTotal.Inc()
	m.SessionsOpen.Inc()
}

// SessionEnded records an end call. wasOpen is false for repeat calls so
// the open gauge is only decremented once.
func (m *Metrics) SessionEnded(wasOpen bool) {
	if m == nil {
		return
	}
	m.SessionsEndedTotal.Inc()
	if wasOpen {
		m.SessionsOpen.Dec()
	}
}

// MessageAppended records an append by sender.
func (m *Metrics) MessageAppended(sender string) {
	if m == nil {
		return
	}
	m.MessagesAppendedTotal.WithLabelValues(sender).Inc()
}

// ObserveRelay records the outcome and latency of one relay call.
func (m *Metrics) ObserveRelay(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RelayRequestsTotal.WithLabelValues(outcome).Inc()
	m.RelayRequestDuration.Observe(d.Seconds())
}

// RelayRetried records one retry attempt.
func (m *Metrics) RelayRetried() {
	if m == nil {
		return
	}
	m.RelayRetriesTotal.Inc()
}

// StreamOpened records a new live feed connection.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.StreamConnections.Inc()
}

// StreamClosed records a closed live feed connection.
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.StreamConnections.Dec()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
