package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts permission evaluations by outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// OutboxDeletions counts outbox delete requests by mode (single|batch|form) and whether a row was removed.
	OutboxDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_outbox_deletions_total",
			Help: "Outbox message deletions requested by senders",
		},
		[]string{"mode", "result"},
	)

	// OutboxRejections counts outbox requests refused before any data access.
	OutboxRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_outbox_rejections_total",
			Help: "Outbox requests rejected by reason",
		},
		[]string{"reason"},
	)

	// ToolLaunches counts signed LTI launches by message type.
	ToolLaunches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_lti_launches_total",
			Help: "Signed LTI tool launches",
		},
		[]string{"message_type"},
	)

	// MaintenancePurged counts rows removed by maintenance jobs.
	MaintenancePurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_maintenance_purged_total",
			Help: "Rows removed by scheduled maintenance",
		},
		[]string{"job"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursehub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
