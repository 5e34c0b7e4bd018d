package jobs

import (
	"context"
	"fmt"

	"github.com/roach88/assetgov/internal/model"
)

// ProcessAlerts counts the active alerts by severity and escalates them
// to the log: HIGH at error level, MEDIUM at warn.
func (r *Runner) ProcessAlerts(ctx context.Context, _ model.Job) (map[string]any, error) {
	active, err := r.store.ActiveAlerts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("process alerts: %w", err)
	}

	bySeverity := map[model.Severity]int{}
	for _, a := range active {
		bySeverity[a.Severity]++
	}

	if n := bySeverity[model.SeverityHigh]; n > 0 {
		r.logger.Error("active high severity alerts", "count", n)
	}
	if n := bySeverity[model.SeverityMedium]; n > 0 {
		r.logger.Warn("active medium severity alerts", "count", n)
	}

	return map[string]any{
		"active": len(active),
		"high":   bySeverity[model.SeverityHigh],
		"medium": bySeverity[model.SeverityMedium],
		"low":    bySeverity[model.SeverityLow],
	}, nil
}
