package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RelayPublished  = "published"
	RelayRetry      = "retry"
	RelayDeadLetter = "dead_letter"
)

// OutboxMetrics tracks the outbox relay: what happened to each event and how
// long the broker took to accept it.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	publish *prometheus.HistogramVec
	batch   prometheus.Histogram
}

// NewOutboxMetrics registers the relay metrics. A nil registerer yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Outbox events handled by the relay, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		publish: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outbox_publish_seconds",
			Help:    "Time for the broker to accept one event.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15},
		}, []string{"transport"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_batch_events",
			Help:    "Events claimed per relay batch.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	reg.MustRegister(m.events, m.publish, m.batch)
	return m
}

func (m *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (m *OutboxMetrics) ObservePublish(transport string, took time.Duration) {
	if m == nil || m.publish == nil {
		return
	}
	m.publish.WithLabelValues(normalizeLabel(transport)).Observe(took.Seconds())
}

func (m *OutboxMetrics) ObserveBatch(size int) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(float64(size))
}
