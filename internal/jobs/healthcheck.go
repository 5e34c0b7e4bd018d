package jobs

import (
	"context"
	"fmt"

	"github.com/roach88/assetgov/internal/health"
	"github.com/roach88/assetgov/internal/model"
)

// Outcome is the result of checking one asset.
type Outcome struct {
	Evaluation health.Evaluation
	Freshness  *model.CheckResult
	Stale      bool
	Alerts     int
}

// Status is the asset's effective status after freshness is applied.
func (o Outcome) Status() model.HealthStatus {
	if o.Stale {
		return model.HealthStale
	}
	return o.Evaluation.Overall
}

// CheckAsset evaluates one asset and raises the matching alerts:
//
//   - UNHEALTHY raises a HIGH HEALTH_CHECK_FAILED alert carrying the first
//     unhealthy sub-check's message.
//   - Otherwise, if the newest execution is older than the freshness
//     window, the summary is marked STALE and a MEDIUM STALE_DATA alert
//     is raised.
func (r *Runner) CheckAsset(ctx context.Context, rec model.AssetRecord) (Outcome, error) {
	history, err := r.store.Executions(ctx, rec.AssetKey, r.historyLimit)
	if err != nil {
		return Outcome{}, fmt.Errorf("load history %s: %w", rec.AssetKey, err)
	}

	ev, err := r.evaluator.Evaluate(ctx, rec.AssetKey, history, rec.Metadata)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Evaluation: ev}

	if ev.Overall == model.HealthUnhealthy {
		check, _ := ev.FirstUnhealthy()
		meta := map[string]any{
			"check_type":    string(check.Type),
			"failure_count": ev.Summary.FailureCount,
		}
		if r.raise(ctx, rec.AssetKey, model.AlertHealthCheckFailed, model.SeverityHigh, check.Message, meta) {
			out.Alerts++
		}
		return out, nil
	}

	if r.freshness <= 0 {
		return out, nil
	}
	fresh := health.Freshness(history, r.clock.Now(), r.freshness)
	out.Freshness = &fresh
	if fresh.Status != model.HealthStale {
		return out, nil
	}

	sum, err := r.evaluator.MarkStale(ctx, rec.AssetKey, fresh)
	if err != nil {
		return out, err
	}
	out.Evaluation.Summary = sum
	out.Stale = true
	if r.raise(ctx, rec.AssetKey, model.AlertStaleData, model.SeverityMedium, fresh.Message, fresh.Details) {
		out.Alerts++
	}
	return out, nil
}

// HealthCheck evaluates every live asset. An asset whose evaluation fails
// gets a MEDIUM HEALTH_CHECK_ERROR alert and the pass moves on.
func (r *Runner) HealthCheck(ctx context.Context, _ model.Job) (map[string]any, error) {
	assets, err := r.registry.GetAll(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	counts := map[model.HealthStatus]int{}
	errs, alerts := 0, 0
	for _, rec := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := r.CheckAsset(ctx, rec)
		if err != nil {
			errs++
			r.logger.Error("health check failed", "asset_key", rec.AssetKey, "error", err)
			msg := fmt.Sprintf("Health check error: %v", err)
			if r.raise(ctx, rec.AssetKey, model.AlertHealthCheckError, model.SeverityMedium, msg, nil) {
				alerts++
			}
			continue
		}
		counts[out.Status()]++
		alerts += out.Alerts
	}

	r.logger.Info("health check complete",
		"assets", len(assets),
		"unhealthy", counts[model.HealthUnhealthy],
		"stale", counts[model.HealthStale],
		"errors", errs)

	return map[string]any{
		"assets_checked": len(assets),
		"healthy":        counts[model.HealthHealthy],
		"unhealthy":      counts[model.HealthUnhealthy],
		"stale":          counts[model.HealthStale],
		"unknown":        counts[model.HealthUnknown],
		"errors":         errs,
		"alerts_created": alerts,
	}, nil
}
