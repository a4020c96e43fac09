package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Consume outcomes.
const (
	outcomeProcessed    = "processed"
	outcomeFailed       = "failed"
	outcomeDeadLettered = "dead_lettered"
)

var (
	consumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "kafka",
			Name:      "consumed_messages_total",
			Help:      "Consumed messages by outcome.",
		},
		[]string{"topic", "group", "outcome"},
	)

	consumeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catalog",
			Subsystem: "kafka",
			Name:      "consume_duration_seconds",
			Help:      "Time spent on one message, retries included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic", "group"},
	)

	duplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "kafka",
			Name:      "duplicate_events_total",
			Help:      "Redelivered events skipped by the idempotency guard.",
		},
		[]string{"type"},
	)

	published = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "kafka",
			Name:      "published_messages_total",
			Help:      "Produced messages by result.",
		},
		[]string{"topic", "result"},
	)
)

func observeConsumed(topic, group, outcome string) {
	consumed.WithLabelValues(topic, group, outcome).Inc()
}

func observePublished(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	published.WithLabelValues(topic, result).Inc()
}
