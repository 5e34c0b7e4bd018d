package health

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/roach88/assetgov/internal/model"
)

// window is how many of the newest executions the drift checks consider.
const window = 5

// Thresholds bound the relative drift tolerated before a check fails.
type Thresholds struct {
	Volume float64 // fraction, e.g. 0.2 for 20%
	Time   float64
}

// DefaultThresholds applies when neither configuration nor asset metadata
// override them.
var DefaultThresholds = Thresholds{Volume: 0.2, Time: 0.5}

// ThresholdsFromMetadata overlays metadata["health_config"] volume_threshold
// and time_threshold onto def. Values of any numeric JSON form are accepted;
// anything else is ignored.
func ThresholdsFromMetadata(metadata map[string]any, def Thresholds) Thresholds {
	cfg, ok := metadata["health_config"].(map[string]any)
	if !ok {
		return def
	}
	t := def
	if v, ok := toFloat(cfg["volume_threshold"]); ok {
		t.Volume = v
	}
	if v, ok := toFloat(cfg["time_threshold"]); ok {
		t.Time = v
	}
	return t
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// CheckExecutionStatus inspects the newest execution. history is newest first.
func CheckExecutionStatus(history []model.ExecutionRecord) model.CheckResult {
	if len(history) == 0 {
		return model.CheckResult{
			Type:    model.CheckExecutionStatus,
			Status:  model.HealthUnknown,
			Message: "No execution history available",
			Details: map[string]any{},
		}
	}

	latest := history[0]
	details := map[string]any{"run_id": latest.RunID, "status": string(latest.Status)}
	if latest.Status == model.ExecutionSuccess {
		return model.CheckResult{
			Type:    model.CheckExecutionStatus,
			Status:  model.HealthHealthy,
			Message: "Latest execution successful",
			Details: details,
		}
	}

	reason := latest.ErrorMessage()
	if reason == "" {
		reason = "Unknown error"
	}
	return model.CheckResult{
		Type:    model.CheckExecutionStatus,
		Status:  model.HealthUnhealthy,
		Message: fmt.Sprintf("Latest execution %s: %s", latest.Status, reason),
		Details: details,
	}
}

// CheckDataVolume compares the newest records_processed with the one before
// it, among the last five executions that reported a count.
func CheckDataVolume(history []model.ExecutionRecord, threshold float64) model.CheckResult {
	if len(history) < 2 {
		return unknown(model.CheckDataVolume, "Insufficient execution history for volume check")
	}

	var volumes []int64
	for _, e := range head(history) {
		if e.RecordsProcessed != nil {
			volumes = append(volumes, *e.RecordsProcessed)
		}
	}
	if len(volumes) < 2 {
		return unknown(model.CheckDataVolume, "Insufficient volume data for comparison")
	}

	current, previous := volumes[0], volumes[1]
	change := changeRatio(float64(current), float64(previous))
	details := map[string]any{
		"current_volume":    current,
		"previous_volume":   previous,
		"change_percentage": change,
		"threshold":         threshold,
	}

	if change > threshold {
		return model.CheckResult{
			Type:    model.CheckDataVolume,
			Status:  model.HealthUnhealthy,
			Message: fmt.Sprintf("Data volume changed by %s, exceeds threshold of %s", percent(change), percent(threshold)),
			Details: details,
		}
	}
	return model.CheckResult{
		Type:    model.CheckDataVolume,
		Status:  model.HealthHealthy,
		Message: fmt.Sprintf("Data volume stable (change: %s)", percent(change)),
		Details: details,
	}
}

// CheckExecutionTime compares the newest run duration with the mean of up to
// four earlier durations among the last five executions.
func CheckExecutionTime(history []model.ExecutionRecord, threshold float64) model.CheckResult {
	if len(history) < 2 {
		return unknown(model.CheckExecutionTime, "Insufficient execution history for time check")
	}

	var durations []float64
	for _, e := range head(history) {
		if d, ok := e.Duration(); ok {
			durations = append(durations, d.Seconds())
		}
	}
	if len(durations) < 2 {
		return unknown(model.CheckExecutionTime, "Insufficient timing data for comparison")
	}

	current := durations[0]
	var sum float64
	for _, d := range durations[1:] {
		sum += d
	}
	average := sum / float64(len(durations)-1)
	change := changeRatio(current, average)
	details := map[string]any{
		"current_time":      current,
		"average_time":      average,
		"change_percentage": change,
		"threshold":         threshold,
	}

	if change > threshold {
		return model.CheckResult{
			Type:    model.CheckExecutionTime,
			Status:  model.HealthUnhealthy,
			Message: fmt.Sprintf("Execution time changed by %s, exceeds threshold of %s", percent(change), percent(threshold)),
			Details: details,
		}
	}
	return model.CheckResult{
		Type:    model.CheckExecutionTime,
		Status:  model.HealthHealthy,
		Message: fmt.Sprintf("Execution time stable (change: %s)", percent(change)),
		Details: details,
	}
}

// Freshness reports STALE when the newest execution finished (or, if it has
// not finished, started) more than maxAge before now. maxAge <= 0 or an
// empty history yields UNKNOWN.
func Freshness(history []model.ExecutionRecord, now time.Time, maxAge time.Duration) model.CheckResult {
	if maxAge <= 0 {
		return unknown(model.CheckFreshness, "Freshness check disabled")
	}
	if len(history) == 0 {
		return unknown(model.CheckFreshness, "No execution history available")
	}

	last := history[0].StartedAt
	if history[0].CompletedAt != nil {
		last = *history[0].CompletedAt
	}
	age := now.Sub(last)
	details := map[string]any{
		"last_run":      last.UTC().Format(time.RFC3339),
		"age_hours":     math.Round(age.Hours()*100) / 100,
		"max_age_hours": maxAge.Hours(),
	}

	if age > maxAge {
		return model.CheckResult{
			Type:    model.CheckFreshness,
			Status:  model.HealthStale,
			Message: fmt.Sprintf("No execution in the last %s", maxAge),
			Details: details,
		}
	}
	return model.CheckResult{
		Type:    model.CheckFreshness,
		Status:  model.HealthHealthy,
		Message: "Data is fresh",
		Details: details,
	}
}

// Aggregate folds sub-check statuses: any UNHEALTHY wins, all HEALTHY is
// HEALTHY, anything else (including no checks) is UNKNOWN.
func Aggregate(results []model.CheckResult) model.HealthStatus {
	if len(results) == 0 {
		return model.HealthUnknown
	}
	allHealthy := true
	for _, r := range results {
		if r.Status == model.HealthUnhealthy {
			return model.HealthUnhealthy
		}
		if r.Status != model.HealthHealthy {
			allHealthy = false
		}
	}
	if allHealthy {
		return model.HealthHealthy
	}
	return model.HealthUnknown
}

// NextSummary applies one verdict to the previous summary. HEALTHY resets
// the failure counter and stamps last_healthy, UNHEALTHY increments the
// counter, every other status leaves both unchanged.
func NextSummary(prev *model.HealthSummary, status model.HealthStatus, now time.Time) model.HealthSummary {
	next := model.HealthSummary{OverallStatus: status, LastChecked: now}
	if prev != nil {
		next.AssetKey = prev.AssetKey
		next.LastHealthy = prev.LastHealthy
		next.FailureCount = prev.FailureCount
	}
	switch status {
	case model.HealthHealthy:
		next.LastHealthy = &now
		next.FailureCount = 0
	case model.HealthUnhealthy:
		next.FailureCount++
	}
	return next
}

func changeRatio(current, baseline float64) float64 {
	if baseline > 0 {
		return math.Abs(current-baseline) / baseline
	}
	if current > 0 {
		return 1.0
	}
	return 0.0
}

func head(history []model.ExecutionRecord) []model.ExecutionRecord {
	if len(history) > window {
		return history[:window]
	}
	return history
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 2, 64) + "%"
}

func unknown(t model.CheckType, msg string) model.CheckResult {
	return model.CheckResult{Type: t, Status: model.HealthUnknown, Message: msg, Details: map[string]any{}}
}
