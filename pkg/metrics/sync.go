package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks outbound channel sync jobs.
type SyncMetrics struct {
	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	depth    *prometheus.GaugeVec
}

// NewSyncMetrics registers the sync queue metrics. A nil registerer yields a no-op recorder.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_jobs_total",
		Help: "Processed sync jobs by channel, action and outcome.",
	}, []string{"channel", "action", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_adapter_call_seconds",
		Help:    "Duration of channel adapter calls made by the sync worker.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel", "action"})
	depth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_queue_jobs",
		Help: "Sync queue size by status.",
	}, []string{"status"})
	reg.MustRegister(jobs, duration, depth)
	return &SyncMetrics{jobs: jobs, duration: duration, depth: depth}
}

// ObserveJob records one processed job. outcome is completed, failed, skipped or dead.
func (m *SyncMetrics) ObserveJob(channel, action, outcome string, took time.Duration) {
	if m == nil || m.jobs == nil {
		return
	}
	m.jobs.WithLabelValues(normalizeLabel(channel), normalizeLabel(action), normalizeLabel(outcome)).Inc()
	if took > 0 {
		m.duration.WithLabelValues(normalizeLabel(channel), normalizeLabel(action)).Observe(took.Seconds())
	}
}

// SetQueueDepth publishes the latest per-status queue counts.
func (m *SyncMetrics) SetQueueDepth(counts map[string]int64) {
	if m == nil || m.depth == nil {
		return
	}
	for status, n := range counts {
		m.depth.WithLabelValues(normalizeLabel(status)).Set(float64(n))
	}
}

// WebhookMetrics counts inbound webhook deliveries.
type WebhookMetrics struct {
	received *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Inbound webhooks by channel and result.",
	}, []string{"channel", "result"})
	reg.MustRegister(received)
	return &WebhookMetrics{received: received}
}

// Inc records one delivery. result is processed, already_processed, rejected or failed.
func (m *WebhookMetrics) Inc(channel, result string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(channel), normalizeLabel(result)).Inc()
}
