package model

import "time"

// ExecutionStatus is the outcome of one asset run.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionRunning ExecutionStatus = "running"
)

// ExecutionRecord is one immutable entry in the execution history log.
//
// Several records may share RunID across retries; ID is the storage
// identity. WindowStart/WindowEnd are only set for windowed ingestion assets.
type ExecutionRecord struct {
	ID               int64           `json:"id"`
	AssetKey         string          `json:"asset_key"`
	RunID            string          `json:"run_id"`
	Status           ExecutionStatus `json:"status"`
	WindowStart      *time.Time      `json:"window_start,omitempty"`
	WindowEnd        *time.Time      `json:"window_end,omitempty"`
	RecordsProcessed *int64          `json:"records_processed,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// Duration returns the wall time between start and completion.
// ok is false when the execution has no completion time.
func (e ExecutionRecord) Duration() (d time.Duration, ok bool) {
	if e.CompletedAt == nil || e.StartedAt.IsZero() {
		return 0, false
	}
	return e.CompletedAt.Sub(e.StartedAt), true
}

// ErrorMessage returns metadata["error"] as a string, or "" when absent.
func (e ExecutionRecord) ErrorMessage() string {
	if e.Metadata == nil {
		return ""
	}
	if msg, ok := e.Metadata["error"].(string); ok {
		return msg
	}
	return ""
}

// Int64 returns a pointer to v. Convenience for RecordsProcessed.
func Int64(v int64) *int64 { return &v }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }
