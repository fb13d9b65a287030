package queue

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinequeue_mutations_enqueued_total",
			Help: "Total number of mutations accepted into the queue",
		},
		[]string{"endpoint", "type"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinequeue_deliveries_total",
			Help: "Total number of processor invocations by outcome",
		},
		[]string{"endpoint", "status"},
	)

	deadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinequeue_dead_lettered_total",
			Help: "Total number of mutations moved to the dead-letter queue",
		},
		[]string{"endpoint"},
	)

	drainPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinequeue_drain_passes_total",
			Help: "Total number of drain passes by outcome",
		},
		[]string{"outcome"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offlinequeue_delivery_duration_seconds",
			Help:    "Processor invocation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	pendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offlinequeue_pending",
			Help: "Current number of mutations awaiting delivery",
		},
	)

	deadLetterGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offlinequeue_dead_letter",
			Help: "Current number of dead-lettered mutations",
		},
	)
)

// Collectors returns the queue metrics so they can be exposed through a dedicated registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		mutationsEnqueuedTotal,
		deliveriesTotal,
		deadLetteredTotal,
		drainPassesTotal,
		deliveryDuration,
		pendingGauge,
		deadLetterGauge,
	}
}

func recordEnqueued(endpoint, kind string) {
	mutationsEnqueuedTotal.WithLabelValues(
		normalizeMetricLabel(endpoint, "unknown"),
		normalizeMetricLabel(kind, "unknown"),
	).Inc()
}

func recordDelivery(endpoint, status string, seconds float64) {
	label := normalizeMetricLabel(endpoint, "unknown")
	deliveriesTotal.WithLabelValues(label, normalizeMetricLabel(status, "unknown")).Inc()
	deliveryDuration.WithLabelValues(label).Observe(seconds)
}

func recordDeadLettered(endpoint string) {
	deadLetteredTotal.WithLabelValues(normalizeMetricLabel(endpoint, "unknown")).Inc()
}

func recordDrainPass(outcome string) {
	drainPassesTotal.WithLabelValues(normalizeMetricLabel(outcome, "unknown")).Inc()
}

func setDepth(pending, deadLetter int) {
	pendingGauge.Set(float64(pending))
	deadLetterGauge.Set(float64(deadLetter))
}

func normalizeMetricLabel(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
