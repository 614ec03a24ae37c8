package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for webhook request metrics
	webhookLabels = []string{"outcome"}
	// Labels for applied event metrics
	eventApplyLabels = []string{"direction", "outcome"}
	// Labels for status transition metrics
	transitionLabels = []string{"from_status", "to_status", "origin"}

	WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_engine_webhook_requests_total",
			Help: "Total number of webhook deliveries received, labeled by outcome.",
		},
		webhookLabels,
	)

	EventsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_engine_events_applied_total",
			Help: "Total number of normalized events applied, labeled by direction and outcome.",
		},
		eventApplyLabels,
	)

	EventApplyDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onboarding_engine_event_apply_duration_seconds",
			Help:    "Histogram of per-event application durations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		eventApplyLabels,
	)

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_engine_status_transitions_total",
			Help: "Total number of onboarding status transitions, labeled by origin.",
		},
		transitionLabels,
	)

	// Global metrics instance
	Metrics *metricsStore
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onboarding_engine_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// --- Reminder Run Metrics ---
var (
	reminderRunLabels     = []string{"mode", "dry_run"}
	reminderOutcomeLabels = []string{"outcome"}

	reminderRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_engine_reminder_runs_total",
			Help: "Total number of reminder batch runs, labeled by mode.",
		},
		reminderRunLabels,
	)
	reminderOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_engine_reminder_outcomes_total",
			Help: "Total number of per-schedule reminder outcomes.",
		},
		reminderOutcomeLabels,
	)
)

// --- Orchestration Worker Pool Metrics ---
var (
	orchestrationKindLabels   = []string{"kind"}
	orchestrationResultLabels = []string{"kind", "status"}

	orchestrationTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_engine_orchestration_tasks_submitted_total",
			Help: "Total number of orchestration tasks submitted to the worker pool.",
		},
		orchestrationKindLabels,
	)
	orchestrationTasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_engine_orchestration_tasks_processed_total",
			Help: "Total number of orchestration tasks processed, labeled by final status.",
		},
		orchestrationResultLabels,
	)
	orchestrationProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onboarding_engine_orchestration_processing_duration_seconds",
			Help:    "Histogram of processing durations for orchestration tasks.",
			Buckets: prometheus.DefBuckets,
		},
		orchestrationKindLabels,
	)
	orchestrationQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "onboarding_engine_orchestration_queue_length",
		Help: "Approximate number of tasks waiting in the orchestration worker pool queue.",
	})
)

// metricsStore holds references to all Prometheus metrics.
type metricsStore struct{}

// InitMetrics initializes and registers the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	if !enabled {
		metricsEnabled = false
		return
	}

	metricsEnabled = true

	// Metrics are auto-registered via promauto; the store exists so helpers
	// can check a single global for enablement.
	Metrics = &metricsStore{}
}

// IncWebhookRequest increments the webhook delivery counter.
func IncWebhookRequest(outcome string) {
	if !metricsEnabled {
		return
	}
	WebhookRequestsTotal.WithLabelValues(outcome).Inc()
}

// IncEventApplied increments the applied event counter.
func IncEventApplied(direction, outcome string) {
	if !metricsEnabled {
		return
	}
	EventsAppliedTotal.WithLabelValues(direction, outcome).Inc()
}

// ObserveEventApplyDuration records the application time for one event.
func ObserveEventApplyDuration(direction, outcome string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventApplyDurationSeconds.WithLabelValues(direction, outcome).Observe(duration.Seconds())
}

// IncStatusTransition increments the status transition counter.
func IncStatusTransition(fromStatus, toStatus, origin string) {
	if !metricsEnabled {
		return
	}
	StatusTransitionsTotal.WithLabelValues(fromStatus, toStatus, origin).Inc()
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(duration.Seconds())
}

// SanitizeErrorType maps specific errors or provides a default category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	// If no error (e.g., for success actions), return "none"
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "signature"):
		return "unauthorized"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

// --- Reminder Metric Helpers ---

// IncReminderRun increments the counter for reminder batch runs.
func IncReminderRun(mode string, dryRun bool) {
	if Metrics != nil {
		dry := "false"
		if dryRun {
			dry = "true"
		}
		reminderRunsTotal.WithLabelValues(mode, dry).Inc()
	}
}

// IncReminderOutcome increments the per-schedule outcome counter.
func IncReminderOutcome(outcome string) {
	if Metrics != nil {
		reminderOutcomesTotal.WithLabelValues(outcome).Inc()
	}
}

// --- Orchestration Metric Helpers ---

// IncOrchestrationTasksSubmitted increments the counter for submitted orchestration tasks.
func IncOrchestrationTasksSubmitted(kind string) {
	if Metrics != nil {
		orchestrationTasksSubmittedTotal.WithLabelValues(kind).Inc()
	}
}

// IncOrchestrationTasksProcessed increments the counter for processed orchestration tasks by status.
func IncOrchestrationTasksProcessed(kind, status string) {
	if Metrics != nil {
		orchestrationTasksProcessedTotal.WithLabelValues(kind, status).Inc()
	}
}

// ObserveOrchestrationProcessingDuration records the processing time for an orchestration task.
func ObserveOrchestrationProcessingDuration(kind string, duration time.Duration) {
	if Metrics != nil {
		orchestrationProcessingDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// SetOrchestrationQueueLength sets the current orchestration queue length.
func SetOrchestrationQueueLength(length int) {
	if Metrics != nil {
		orchestrationQueueLength.Set(float64(length))
	}
}
