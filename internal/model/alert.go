package model

import "time"

// Severity ranks alerts.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Alert types raised by the built-in jobs.
const (
	AlertHealthCheckFailed = "HEALTH_CHECK_FAILED"
	AlertHealthCheckError  = "HEALTH_CHECK_ERROR"
	AlertStaleData         = "STALE_DATA"
	AlertJobFailed         = "JOB_FAILED"
)

// Alert is an active (ResolvedAt == nil) or resolved governance alert.
type Alert struct {
	ID         int64          `json:"id"`
	AssetKey   string         `json:"asset_key"`
	Type       string         `json:"alert_type"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Active reports whether the alert has not been resolved.
func (a Alert) Active() bool { return a.ResolvedAt == nil }
