// Package health derives per-asset health from execution history and keeps
// the rolled-up summary current.
//
// Evaluation is on demand. Three sub-checks run against the newest
// executions (status, volume drift, duration drift), every result is
// persisted, and the aggregate verdict updates the summary. Staleness is a
// separate freshness layer applied by MarkStale; it is never derived by
// Evaluate.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/assetgov/internal/clock"
	"github.com/roach88/assetgov/internal/metrics"
	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/store"
)

// Evaluation is the outcome of one Evaluate call.
type Evaluation struct {
	AssetKey    string              `json:"asset_key"`
	Overall     model.HealthStatus  `json:"overall_status"`
	Checks      []model.CheckResult `json:"checks"`
	Summary     model.HealthSummary `json:"summary"`
	EvaluatedAt time.Time           `json:"evaluated_at"`
}

// FirstUnhealthy returns the first failing sub-check, in evaluation order.
func (e Evaluation) FirstUnhealthy() (model.CheckResult, bool) {
	for _, c := range e.Checks {
		if c.Status == model.HealthUnhealthy {
			return c, true
		}
	}
	return model.CheckResult{}, false
}

// Evaluator runs health checks and persists their results.
type Evaluator struct {
	store      *store.Store
	clock      clock.Clock
	thresholds Thresholds
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock sets the clock used to stamp checks and summaries.
func WithClock(c clock.Clock) Option {
	return func(e *Evaluator) { e.clock = clock.OrSystem(c) }
}

// WithThresholds sets the defaults used when asset metadata has no
// health_config override.
func WithThresholds(t Thresholds) Option {
	return func(e *Evaluator) { e.thresholds = t }
}

// WithLogger sets the logger. A nil logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics counts evaluations by verdict on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// NewEvaluator creates an Evaluator backed by st.
func NewEvaluator(st *store.Store, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:      st,
		clock:      clock.System{},
		thresholds: DefaultThresholds,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the three sub-checks over history (newest first), persists
// each result, and folds the aggregate verdict into the asset's summary.
// metadata may carry health_config thresholds.
func (e *Evaluator) Evaluate(ctx context.Context, key string, history []model.ExecutionRecord, metadata map[string]any) (Evaluation, error) {
	now := e.clock.Now()
	t := ThresholdsFromMetadata(metadata, e.thresholds)

	checks := []model.CheckResult{
		CheckExecutionStatus(history),
		CheckDataVolume(history, t.Volume),
		CheckExecutionTime(history, t.Time),
	}
	for i := range checks {
		checks[i].AssetKey = key
		checks[i].CheckedAt = now
		id, err := e.store.SaveHealthCheck(ctx, key, checks[i])
		if err != nil {
			return Evaluation{}, fmt.Errorf("evaluate %s: %w", key, err)
		}
		checks[i].ID = id
	}

	overall := Aggregate(checks)
	summary, err := e.store.UpdateHealthSummary(ctx, key, func(prev *model.HealthSummary) model.HealthSummary {
		return NextSummary(prev, overall, now)
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", key, err)
	}

	e.metrics.HealthEvaluation(string(overall))
	e.logger.Debug("health evaluated",
		"asset_key", key,
		"status", overall,
		"failure_count", summary.FailureCount)

	return Evaluation{
		AssetKey:    key,
		Overall:     overall,
		Checks:      checks,
		Summary:     summary,
		EvaluatedAt: now,
	}, nil
}

// MarkStale persists a freshness result and sets the summary status to
// STALE without touching the failure counter or last_healthy.
func (e *Evaluator) MarkStale(ctx context.Context, key string, check model.CheckResult) (model.HealthSummary, error) {
	now := e.clock.Now()
	check.AssetKey = key
	check.CheckedAt = now
	if _, err := e.store.SaveHealthCheck(ctx, key, check); err != nil {
		return model.HealthSummary{}, fmt.Errorf("mark stale %s: %w", key, err)
	}
	sum, err := e.store.UpdateHealthSummary(ctx, key, func(prev *model.HealthSummary) model.HealthSummary {
		return NextSummary(prev, model.HealthStale, now)
	})
	if err != nil {
		return model.HealthSummary{}, fmt.Errorf("mark stale %s: %w", key, err)
	}
	e.metrics.HealthEvaluation(string(model.HealthStale))
	return sum, nil
}

// Summary returns the stored summary for key. found is false before the
// first evaluation.
func (e *Evaluator) Summary(ctx context.Context, key string) (sum model.HealthSummary, found bool, err error) {
	sum, err = e.store.HealthSummary(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return model.HealthSummary{}, false, nil
	}
	if err != nil {
		return model.HealthSummary{}, false, err
	}
	return sum, true, nil
}

// UnhealthyAssets returns the summaries currently UNHEALTHY.
func (e *Evaluator) UnhealthyAssets(ctx context.Context) ([]model.HealthSummary, error) {
	return e.store.HealthSummaries(ctx, model.HealthUnhealthy)
}

// RecentChecks returns persisted sub-check results, newest first.
func (e *Evaluator) RecentChecks(ctx context.Context, key string, limit int) ([]model.CheckResult, error) {
	return e.store.HealthChecks(ctx, key, limit)
}
