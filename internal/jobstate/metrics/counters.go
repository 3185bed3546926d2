package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/G-Research/jobstate/internal/jobstate/status"
)

const MetricPrefix = "jobstate_"

var statusTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "status_transitions_total",
		Help: "Status changes written, by requested and stored status",
	},
	[]string{"requested", "actual"},
)

var rejectedTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "rejected_transitions_total",
		Help: "Status changes refused by the transition guard",
	},
	[]string{"current", "requested"},
)

var reschedules = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricPrefix + "reschedules_total",
		Help: "Jobs sent back to Received by a reschedule",
	},
)

var rescheduleLimitReached = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricPrefix + "reschedule_limit_reached_total",
		Help: "Jobs failed because they ran out of reschedules",
	},
)

var siteMaskChanges = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "site_mask_changes_total",
		Help: "Site mask entries changed, by new status",
	},
	[]string{"status"},
)

func RecordTransition(requested status.Status, actual status.Status) {
	statusTransitions.WithLabelValues(string(requested), string(actual)).Inc()
}

func RecordRejectedTransition(current status.Status, requested status.Status) {
	rejectedTransitions.WithLabelValues(string(current), string(requested)).Inc()
}

func RecordReschedule() {
	reschedules.Inc()
}

func RecordRescheduleLimitReached() {
	rescheduleLimitReached.Inc()
}

func RecordSiteMaskChanges(status string, count int) {
	siteMaskChanges.WithLabelValues(status).Add(float64(count))
}
