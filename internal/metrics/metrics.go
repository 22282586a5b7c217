// Package metrics exposes Prometheus instrumentation for the completion relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "sidekick"
	subsystem = "relay"
)

// Outcome labels the terminal state of a session.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
)

// Relay holds the relay's collectors. A nil *Relay is valid and records nothing.
type Relay struct {
	SessionsTotal    *prometheus.CounterVec
	ChunksTotal      prometheus.Counter
	ActiveSessions   prometheus.Gauge
	TimeToFirstChunk prometheus.Histogram
	Subscribers      prometheus.Gauge
}

// New creates the relay collectors and registers them with reg.
func New(reg prometheus.Registerer) *Relay {
	factory := promauto.With(reg)

	return &Relay{
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "sessions_total",
				Help:      "Completion sessions by protocol and terminal outcome",
			},
			[]string{"protocol", "outcome"},
		),
		ChunksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "chunks_total",
				Help:      "Content deltas broadcast to subscribers",
			},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_sessions",
				Help:      "Completion sessions currently in flight",
			},
		),
		TimeToFirstChunk: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "time_to_first_chunk_seconds",
				Help:      "Time from session start to the first content delta",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),
		Subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscribers",
				Help:      "Event subscribers currently attached",
			},
		),
	}
}

// SessionStarted marks a session as running.
func (m *Relay) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionFinished records a running session's outcome.
func (m *Relay) SessionFinished(protocol string, outcome Outcome) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(protocol, string(outcome)).Inc()
}

// SessionRejected counts a start that never produced a running session.
func (m *Relay) SessionRejected(protocol string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(protocol, string(OutcomeRejected)).Inc()
}

// Chunk counts one relayed content delta.
func (m *Relay) Chunk() {
	if m == nil {
		return
	}
	m.ChunksTotal.Inc()
}

// FirstChunk observes the delay between session start and its first delta.
func (m *Relay) FirstChunk(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TimeToFirstChunk.Observe(elapsed.Seconds())
}

// SetSubscribers reports the number of attached event subscribers.
func (m *Relay) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}
