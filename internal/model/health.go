package model

import "time"

// HealthStatus is the verdict vocabulary shared by sub-checks and summaries.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
	HealthStale     HealthStatus = "STALE"
	HealthUnknown   HealthStatus = "UNKNOWN"
)

// CheckType names a health sub-check.
type CheckType string

const (
	CheckExecutionStatus CheckType = "execution_status"
	CheckDataVolume      CheckType = "data_volume"
	CheckExecutionTime   CheckType = "execution_time"
	CheckDataQuality     CheckType = "data_quality"
	CheckDependency      CheckType = "dependency"
	CheckFreshness       CheckType = "freshness"
)

// CheckResult is the outcome of one sub-check. Every result is persisted.
type CheckResult struct {
	ID        int64          `json:"id,omitempty"`
	AssetKey  string         `json:"asset_key,omitempty"`
	Type      CheckType      `json:"type"`
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	CheckedAt time.Time      `json:"checked_at,omitempty"`
}

// HealthSummary is the rolled-up health state of one asset.
//
// FailureCount counts consecutive UNHEALTHY verdicts; it resets to 0 on a
// HEALTHY verdict and is left alone by UNKNOWN and STALE.
type HealthSummary struct {
	AssetKey      string       `json:"asset_key"`
	OverallStatus HealthStatus `json:"overall_status"`
	LastHealthy   *time.Time   `json:"last_healthy,omitempty"`
	FailureCount  int          `json:"failure_count"`
	LastChecked   time.Time    `json:"last_checked"`
}
