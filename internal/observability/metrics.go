// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Claim metrics
	ClaimsSubmitted    *prometheus.CounterVec
	ValidationRejected *prometheus.CounterVec
	ClaimsResolved     *prometheus.CounterVec
	ProcessingErrors   *prometheus.CounterVec

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	LeaseSkips  *prometheus.CounterVec

	// Scheduler metrics
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Reporting metrics
	EventsPublished *prometheus.CounterVec
	SinkErrors      *prometheus.CounterVec
	ReportFailures  prometheus.Counter
	WSClients       prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "waiver_wire"
	}

	return &Metrics{
		// Claim metrics
		ClaimsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "submitted_total",
			Help:      "Total number of claims accepted by league waiver mode",
		}, []string{"mode"}),
		ValidationRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "rejected_total",
			Help:      "Total number of submissions rejected by validation code",
		}, []string{"code"}),
		ClaimsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "resolved_total",
			Help:      "Total number of claims reaching a terminal status",
		}, []string{"status", "reason"}),
		ProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "processing_errors_total",
			Help:      "Total number of claims failed with PROCESSING_ERROR",
		}, []string{"mode"}),

		// Run metrics
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total number of league waiver runs by trigger and status",
		}, []string{"trigger", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "League waiver run duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"trigger"}),
		LeaseSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "lease_skips_total",
			Help:      "Total number of operations skipped because a league run held the lease",
		}, []string{"operation"}),

		// Scheduler metrics
		JobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job executions by status",
		}, []string{"job", "status"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration in seconds",
			Buckets:   []float64{0.1, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"job"}),

		// Reporting metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "events_published_total",
			Help:      "Total number of waiver events delivered by sink",
		}, []string{"sink"}),
		SinkErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "sink_errors_total",
			Help:      "Total number of failed sink deliveries",
		}, []string{"sink"}),
		ReportFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "report_failures_total",
			Help:      "Total number of runs whose report could not be delivered",
		}),
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "ws_clients",
			Help:      "Current number of connected websocket subscribers",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful waiver run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordClaimSubmitted increments the accepted claims counter.
func RecordClaimSubmitted(mode string) {
	DefaultMetrics.ClaimsSubmitted.WithLabelValues(mode).Inc()
}

// RecordValidationRejected records a rejected submission.
func RecordValidationRejected(code string) {
	DefaultMetrics.ValidationRejected.WithLabelValues(code).Inc()
}

// RecordClaimResolved records a claim reaching a terminal status.
func RecordClaimResolved(status, reason string) {
	DefaultMetrics.ClaimsResolved.WithLabelValues(status, reason).Inc()
}

// RecordProcessingError records an unexpected per-claim failure.
func RecordProcessingError(mode string) {
	DefaultMetrics.ProcessingErrors.WithLabelValues(mode).Inc()
}

// RecordRun records a league run. Duration is only observed for runs that did work.
func RecordRun(trigger, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(trigger, status).Inc()
	if durationSeconds > 0 {
		DefaultMetrics.RunDuration.WithLabelValues(trigger).Observe(durationSeconds)
	}
	if status == "success" {
		DefaultMetrics.LastSuccessfulRun.SetToCurrentTime()
	}
}

// RecordLeaseSkip records an operation skipped because the league was leased.
func RecordLeaseSkip(operation string) {
	DefaultMetrics.LeaseSkips.WithLabelValues(operation).Inc()
}

// RecordJobRun records a scheduled job execution.
func RecordJobRun(job, status string, durationSeconds float64) {
	DefaultMetrics.JobRuns.WithLabelValues(job, status).Inc()
	DefaultMetrics.JobDuration.WithLabelValues(job).Observe(durationSeconds)
}

// RecordEventsPublished records events delivered to a sink.
func RecordEventsPublished(sink string, n int) {
	DefaultMetrics.EventsPublished.WithLabelValues(sink).Add(float64(n))
}

// RecordSinkError records a failed sink delivery attempt.
func RecordSinkError(sink string) {
	DefaultMetrics.SinkErrors.WithLabelValues(sink).Inc()
}

// RecordReportFailure records a run whose report was dropped.
func RecordReportFailure() {
	DefaultMetrics.ReportFailures.Inc()
}

// SetWSClients updates the websocket subscriber gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
