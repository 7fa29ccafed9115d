// Package metrics holds the Prometheus metrics for the voice gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the gateway.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsEnded   prometheus.Counter
	SessionDuration prometheus.Histogram

	// Turn metrics
	TurnsCompleted prometheus.Counter
	TurnsFailed    *prometheus.CounterVec
	TurnDuration   prometheus.Histogram
	UtteranceBytes prometheus.Histogram

	// Stage metrics
	StageDuration *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all gateway metrics on reg. Pass a fresh
// registry in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceloop_active_sessions",
			Help: "Current number of live websocket sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_sessions_started_total",
			Help: "Total number of websocket sessions opened",
		}),
		SessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_sessions_ended_total",
			Help: "Total number of websocket sessions closed",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_session_duration_seconds",
			Help:    "Duration of websocket sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_turns_completed_total",
			Help: "Total number of fully successful conversation turns",
		}),
		TurnsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceloop_turns_failed_total",
			Help: "Total number of failed conversation turns",
		}, []string{"stage"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_turn_duration_seconds",
			Help:    "End-to-end duration of conversation turns",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),
		UtteranceBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_utterance_bytes",
			Help:    "Size of captured utterances in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1KB to ~16MB
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceloop_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceloop_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceloop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// SessionOpened records a new live session.
func (m *Metrics) SessionOpened() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// SessionClosed records the end of a live session.
func (m *Metrics) SessionClosed(durationSeconds float64) {
	m.SessionsEnded.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// TurnCompleted records a fully successful turn.
func (m *Metrics) TurnCompleted(durationSeconds float64) {
	m.TurnsCompleted.Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// TurnFailed records a failed turn by the stage that broke it.
func (m *Metrics) TurnFailed(stage string) {
	m.TurnsFailed.WithLabelValues(stage).Inc()
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// ObserveUtterance records the size of a captured utterance.
func (m *Metrics) ObserveUtterance(sizeBytes int) {
	m.UtteranceBytes.Observe(float64(sizeBytes))
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
