package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	IntakeReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_reports_total",
			Help: "Emergency reports processed, by outcome error code or \"ok\"",
		},
		[]string{"outcome"},
	)

	IntakeStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_stage_duration_seconds",
			Help:    "Duration of each intake pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	EnrichmentDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_degraded_total",
			Help: "Context sub-queries that fell back to defaults",
		},
		[]string{"source"},
	)

	EnrichmentCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_cache_total",
			Help: "Enrichment cache lookups by result",
		},
		[]string{"source", "result"},
	)

	EmergencyTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergency_transitions_total",
			Help: "Accepted emergency status transitions",
		},
		[]string{"from", "to"},
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications by channel and resulting status",
		},
		[]string{"channel", "status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "API requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_connections",
			Help: "Open live push connections",
		},
	)
)
