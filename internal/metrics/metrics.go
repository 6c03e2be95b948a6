// Package metrics defines the Prometheus instruments of the notifier.
//
// Metrics are served on /metrics. A nil *Metrics is valid and records nothing,
// so components can be built without instrumentation in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notifier"

// Event outcomes recorded by EventsTotal.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeDeleted = "deleted"
	OutcomeNoop    = "noop"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus instruments for the notification engine.
type Metrics struct {
	// EventsTotal counts recorded events.
	// Labels: kind, outcome (created, updated, deleted, noop, invalid, failed)
	EventsTotal *prometheus.CounterVec

	// ConflictRetriesTotal counts optimistic-write retries.
	ConflictRetriesTotal prometheus.Counter

	// PublishedTotal counts payloads handed to live subscribers.
	PublishedTotal prometheus.Counter

	// DroppedTotal counts payloads dropped for slow subscribers.
	DroppedTotal prometheus.Counter

	// LiveSubscribers tracks open live subscriptions.
	LiveSubscribers prometheus.Gauge

	// ReadsTotal counts read-state changes.
	// Labels: scope (single, all)
	ReadsTotal *prometheus.CounterVec
}

// New creates and registers all instruments on reg.
// Registering twice on the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Notification events processed by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ConflictRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "conflict_retries_total",
			Help:      "Optimistic concurrency conflicts that triggered a retry",
		}),
		PublishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Payloads delivered to live subscribers",
		}),
		DroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dropped_total",
			Help:      "Payloads dropped because a subscriber buffer was full",
		}),
		LiveSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "live_subscribers",
			Help:      "Currently open live subscriptions",
		}),
		ReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "reads_total",
				Help:      "Read-state changes by scope",
			},
			[]string{"scope"},
		),
	}
}

// RecordEvent increments EventsTotal.
func (m *Metrics) RecordEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordConflictRetry increments ConflictRetriesTotal.
func (m *Metrics) RecordConflictRetry() {
	if m == nil {
		return
	}
	m.ConflictRetriesTotal.Inc()
}

// RecordPublished adds n delivered payloads.
func (m *Metrics) RecordPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PublishedTotal.Add(float64(n))
}

// RecordDropped increments DroppedTotal.
func (m *Metrics) RecordDropped(topic string) {
	if m == nil {
		return
	}
	m.DroppedTotal.Inc()
}

// SubscribersChanged moves LiveSubscribers by delta.
func (m *Metrics) SubscribersChanged(delta int) {
	if m == nil {
		return
	}
	m.LiveSubscribers.Add(float64(delta))
}

// RecordRead increments ReadsTotal.
func (m *Metrics) RecordRead(scope string) {
	if m == nil {
		return
	}
	m.ReadsTotal.WithLabelValues(scope).Inc()
}
