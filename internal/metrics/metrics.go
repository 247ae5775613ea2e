// Package metrics declares the Prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgevents_commands_total",
		Help: "Total number of engine commands, labelled by command and outcome kind.",
	}, []string{"command", "outcome"})

	// RegistrationChanges sums across replicas; live seats are
	// created minus canceled.
	RegistrationChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgevents_registration_changes_total",
		Help: "Committed registration changes, labelled by change (created, canceled).",
	}, []string{"change"})

	RemindersEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orgevents_reminders_emitted_total",
		Help: "Total number of reminder intents emitted by reminder scans.",
	})

	ReminderScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orgevents_reminder_scan_duration_ms",
		Help:    "Duration of a single tenant reminder scan in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgevents_notifications_total",
		Help: "Reminder deliveries handled by the dispatcher, labelled by status.",
	}, []string{"status"})

	NotifyQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orgevents_notify_queue_utilization_ratio",
		Help: "Current reminder delivery queue utilization (0–1).",
	})

	AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orgevents_audit_append_failures_total",
		Help: "Audit records that could not be appended for a committed mutation.",
	})
)
