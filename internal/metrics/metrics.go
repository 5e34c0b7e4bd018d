// Package metrics exposes Prometheus counters for the governance layer.
//
// A nil *Recorder is valid and records nothing, so components can take one
// as an optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "assetgov"

// Recorder owns a private registry and the governance collectors on it.
type Recorder struct {
	registry *prometheus.Registry

	// registrations counts register_or_update outcomes.
	// Labels: result (written, debounced, failed)
	registrations *prometheus.CounterVec

	// executions counts recorded asset executions.
	// Labels: status (success, failed, running)
	executions *prometheus.CounterVec

	// healthEvaluations counts aggregate health verdicts.
	// Labels: status (HEALTHY, UNHEALTHY, STALE, UNKNOWN)
	healthEvaluations *prometheus.CounterVec

	// alertsCreated counts alerts raised.
	// Labels: severity (HIGH, MEDIUM, LOW)
	alertsCreated *prometheus.CounterVec

	// jobRuns counts scheduler job executions.
	// Labels: job, status (completed, failed)
	jobRuns *prometheus.CounterVec

	// jobDuration measures scheduler job wall time.
	// Labels: job
	jobDuration *prometheus.HistogramVec
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Asset registration attempts by result",
		}, []string{"result"}),
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Asset executions recorded by status",
		}, []string{"status"}),
		healthEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_evaluations_total",
			Help:      "Asset health evaluations by overall status",
		}, []string{"status"}),
		alertsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts created by severity",
		}, []string{"severity"}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by job and status",
		}, []string{"job", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job wall time in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
	}
}

// Gatherer returns the registry for exposition.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Registration records one registration outcome.
func (r *Recorder) Registration(result string) {
	if r == nil {
		return
	}
	r.registrations.WithLabelValues(result).Inc()
}

// Execution records one saved asset execution.
func (r *Recorder) Execution(status string) {
	if r == nil {
		return
	}
	r.executions.WithLabelValues(status).Inc()
}

// HealthEvaluation records one aggregate verdict.
func (r *Recorder) HealthEvaluation(status string) {
	if r == nil {
		return
	}
	r.healthEvaluations.WithLabelValues(status).Inc()
}

// AlertCreated records one new alert.
func (r *Recorder) AlertCreated(severity string) {
	if r == nil {
		return
	}
	r.alertsCreated.WithLabelValues(severity).Inc()
}

// JobRun records one finished scheduler job.
func (r *Recorder) JobRun(job, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.jobRuns.WithLabelValues(job, status).Inc()
	r.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
