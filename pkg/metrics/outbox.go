package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics records publisher throughput and failures.
type OutboxMetrics struct {
	published    prometheus.Counter
	failures     prometheus.Counter
	deadLettered prometheus.Counter
}

// NewOutboxMetrics registers the outbox metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events published to Pub/Sub.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed.",
	})
	deadLettered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_dead_lettered_total",
		Help: "Outbox events moved to the dead letter table.",
	})
	reg.MustRegister(published, failures, deadLettered)
	return &OutboxMetrics{
		published:    published,
		failures:     failures,
		deadLettered: deadLettered,
	}
}

// IncPublished increments the published event counter.
func (m *OutboxMetrics) IncPublished() {
	if m == nil || m.published == nil {
		return
	}
	m.published.Inc()
}

// IncFailures increments the failed publish counter.
func (m *OutboxMetrics) IncFailures() {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Inc()
}

// IncDeadLettered increments the DLQ counter.
func (m *OutboxMetrics) IncDeadLettered() {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.Inc()
}
