package scheduler

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Slot outcomes reported on offlinequeue_scheduler_runs_total.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeSkipped   = "skipped"
	outcomeLockError = "lock_error"
)

var (
	slotRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offlinequeue_scheduler_runs_total",
		Help: "Scheduled task slots by outcome.",
	}, []string{"task", "status"})

	slotsRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "offlinequeue_scheduler_inflight",
		Help: "Scheduled tasks currently running.",
	}, []string{"task"})

	leaseRenewals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offlinequeue_scheduler_lock_renew_total",
		Help: "Lease renewals attempted while a task runs.",
	}, []string{"task", "status"})
)

// Collectors returns the scheduler metrics for a dedicated registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{slotRuns, slotsRunning, leaseRenewals}
}

func observeSlot(task, outcome string) {
	slotRuns.WithLabelValues(taskLabel(task), outcome).Inc()
}

func observeRenewal(task string, err error) {
	status := outcomeSuccess
	if err != nil {
		status = outcomeError
	}
	leaseRenewals.WithLabelValues(taskLabel(task), status).Inc()
}

func taskLabel(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "unknown"
}
