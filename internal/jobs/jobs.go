// Package jobs implements the built-in maintenance jobs run by the
// scheduler: periodic health checks, asset discovery and alert processing.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/assetgov/internal/clock"
	"github.com/roach88/assetgov/internal/config"
	"github.com/roach88/assetgov/internal/discovery"
	"github.com/roach88/assetgov/internal/health"
	"github.com/roach88/assetgov/internal/metrics"
	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/registry"
	"github.com/roach88/assetgov/internal/schedule"
	"github.com/roach88/assetgov/internal/store"
)

// Names of the built-in jobs.
const (
	HealthCheckJobName     = "health_check_job"
	DiscoveryJobName       = "asset_discovery_job"
	AlertProcessingJobName = "alert_processing_job"
)

// DefaultHistoryLimit is how many executions a health check looks at.
const DefaultHistoryLimit = 10

// Runner holds the services the built-in jobs operate on. Its job methods
// have the schedule.JobFunc signature.
type Runner struct {
	store      *store.Store
	registry   *registry.Registry
	evaluator  *health.Evaluator
	discoverer *discovery.Discoverer
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Recorder

	historyLimit      int
	freshness         time.Duration
	definitionsDir    string
	discoveryInterval time.Duration

	mu            sync.Mutex
	lastDiscovery time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the time source. Defaults to clock.System.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = clock.OrSystem(c) }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithHistoryLimit sets how many executions each health check loads.
func WithHistoryLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// WithFreshness sets the staleness cutoff. Zero disables freshness checks.
func WithFreshness(d time.Duration) Option {
	return func(r *Runner) { r.freshness = d }
}

// WithDefinitions sets the directory the discovery job scans and the
// minimum time between two discovery passes.
func WithDefinitions(dir string, interval time.Duration) Option {
	return func(r *Runner) {
		r.definitionsDir = dir
		r.discoveryInterval = interval
	}
}

// New creates a Runner.
func New(st *store.Store, reg *registry.Registry, ev *health.Evaluator, disc *discovery.Discoverer, opts ...Option) *Runner {
	r := &Runner{
		store:        st,
		registry:     reg,
		evaluator:    ev,
		discoverer:   disc,
		clock:        clock.System{},
		logger:       slog.Default(),
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterDefaults registers the three built-in jobs with s using the
// schedule expressions from cfg. A job whose expression does not parse is
// logged and left out; the others are still registered. Returns the number
// of jobs registered.
func (r *Runner) RegisterDefaults(ctx context.Context, s *schedule.Scheduler, cfg config.JobScheduler) int {
	defaults := []struct {
		name   string
		typ    model.JobType
		expr   string
		fn     schedule.JobFunc
		config map[string]any
	}{
		{HealthCheckJobName, model.JobHealthCheck, cfg.HealthCheckJob, r.HealthCheck, nil},
		{DiscoveryJobName, model.JobAssetDiscovery, cfg.DiscoveryJob, r.Discover, r.discoveryConfig()},
		{AlertProcessingJobName, model.JobAlertProcessing, cfg.AlertProcessingJob, r.ProcessAlerts, nil},
	}

	registered := 0
	for _, d := range defaults {
		if _, err := s.RegisterJob(ctx, d.name, d.typ, d.expr, d.fn, d.config); err != nil {
			r.logger.Error("register default job", "job", d.name, "schedule", d.expr, "error", err)
			continue
		}
		registered++
	}
	return registered
}

func (r *Runner) discoveryConfig() map[string]any {
	if r.definitionsDir == "" {
		return nil
	}
	return map[string]any{"definitions_dir": r.definitionsDir}
}

func (r *Runner) raise(ctx context.Context, key, alertType string, severity model.Severity, message string, metadata map[string]any) bool {
	if _, err := r.store.CreateAlert(ctx, key, alertType, severity, message, metadata); err != nil {
		r.logger.Error("create alert", "asset_key", key, "alert_type", alertType, "error", err)
		return false
	}
	r.metrics.AlertCreated(string(severity))
	r.logger.Warn("alert raised",
		"asset_key", key,
		"alert_type", alertType,
		"severity", severity,
		"message", message)
	return true
}
