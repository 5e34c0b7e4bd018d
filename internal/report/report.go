// Package report builds the governance dashboard views: asset inventory,
// asset health, ownership and alert counts.
//
// Every view degrades to an empty result when the store cannot be read;
// the failure is logged, never returned.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/assetgov/internal/clock"
	"github.com/roach88/assetgov/internal/health"
	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/store"
)

// DefaultFreshness is the staleness cutoff used by the health view.
const DefaultFreshness = 25 * time.Hour

// InventoryRow is one asset in the inventory view.
type InventoryRow struct {
	AssetKey        string          `json:"asset_key"`
	Name            string          `json:"asset_name"`
	Type            model.AssetType `json:"asset_type"`
	Group           string          `json:"group_name"`
	Pipeline        string          `json:"pipeline_name"`
	OwnerCount      int             `json:"owner_count"`
	TagCount        int             `json:"tag_count"`
	DependencyCount int             `json:"dependency_count"`
	Version         int64           `json:"version"`
	LastUpdated     time.Time       `json:"last_updated"`
}

// HealthRow is one asset in the health view.
//
// Status is derived from the newest execution and the freshness window;
// SummaryStatus is the stored rolled-up verdict, UNKNOWN if never evaluated.
type HealthRow struct {
	AssetKey            string             `json:"asset_key"`
	Name                string             `json:"asset_name"`
	Type                model.AssetType    `json:"asset_type"`
	Group               string             `json:"group_name"`
	Status              model.HealthStatus `json:"health_status"`
	SummaryStatus       model.HealthStatus `json:"summary_status"`
	FailureCount        int                `json:"failure_count"`
	AlertCount          int                `json:"alert_count"`
	LastExecutionStatus string             `json:"last_execution_status"`
	LastExecutionTime   *time.Time         `json:"last_execution_time,omitempty"`
}

// OwnershipRow pairs one owner with one asset.
type OwnershipRow struct {
	Owner    string          `json:"owner"`
	AssetKey string          `json:"asset_key"`
	Name     string          `json:"asset_name"`
	Type     model.AssetType `json:"asset_type"`
	Group    string          `json:"group_name"`
}

// AlertCounts is the number of active alerts per severity.
type AlertCounts struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Reporter reads dashboard views from the store.
type Reporter struct {
	store     *store.Store
	clock     clock.Clock
	logger    *slog.Logger
	freshness time.Duration
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock sets the time source. Defaults to clock.System.
func WithClock(c clock.Clock) Option {
	return func(r *Reporter) { r.clock = clock.OrSystem(c) }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFreshness sets the staleness cutoff of the health view.
func WithFreshness(d time.Duration) Option {
	return func(r *Reporter) { r.freshness = d }
}

// New creates a Reporter.
func New(st *store.Store, opts ...Option) *Reporter {
	r := &Reporter{
		store:     st,
		clock:     clock.System{},
		logger:    slog.Default(),
		freshness: DefaultFreshness,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reporter) assets(ctx context.Context, view string) []model.AssetRecord {
	assets, err := r.store.ListAssets(ctx, nil)
	if err != nil {
		r.logger.Warn("report degraded", "view", view, "error", err)
		return nil
	}
	return assets
}

// Inventory lists every registered asset with its owner, tag and
// dependency counts.
func (r *Reporter) Inventory(ctx context.Context) []InventoryRow {
	assets := r.assets(ctx, "inventory")
	rows := make([]InventoryRow, 0, len(assets))
	for _, a := range assets {
		rows = append(rows, InventoryRow{
			AssetKey:        a.AssetKey,
			Name:            a.Name,
			Type:            a.Type,
			Group:           a.Group,
			Pipeline:        a.Pipeline,
			OwnerCount:      len(a.Owners),
			TagCount:        len(a.Tags),
			DependencyCount: len(a.Dependencies),
			Version:         a.Version,
			LastUpdated:     a.LastUpdated,
		})
	}
	return rows
}

// Health lists every registered asset with its display status, stored
// summary and active alert count. Per-asset read failures leave that
// asset's optional columns empty.
func (r *Reporter) Health(ctx context.Context) []HealthRow {
	assets := r.assets(ctx, "health")
	now := r.clock.Now()
	rows := make([]HealthRow, 0, len(assets))
	for _, a := range assets {
		row := HealthRow{
			AssetKey:            a.AssetKey,
			Name:                a.Name,
			Type:                a.Type,
			Group:               a.Group,
			Status:              model.HealthUnknown,
			SummaryStatus:       model.HealthUnknown,
			LastExecutionStatus: "NONE",
		}

		history, err := r.store.Executions(ctx, a.AssetKey, 1)
		if err != nil {
			r.logger.Warn("report: executions", "asset_key", a.AssetKey, "error", err)
		}
		if len(history) > 0 {
			latest := history[0]
			row.LastExecutionStatus = string(latest.Status)
			row.LastExecutionTime = latest.CompletedAt
			row.Status = displayStatus(history, now, r.freshness)
		}

		if sum, err := r.store.HealthSummary(ctx, a.AssetKey); err == nil {
			row.SummaryStatus = sum.OverallStatus
			row.FailureCount = sum.FailureCount
		}

		if alerts, err := r.store.ActiveAlerts(ctx, a.AssetKey); err == nil {
			row.AlertCount = len(alerts)
		} else {
			r.logger.Warn("report: alerts", "asset_key", a.AssetKey, "error", err)
		}
		rows = append(rows, row)
	}
	return rows
}

// displayStatus is UNHEALTHY when the newest run did not succeed, STALE
// when it succeeded outside the freshness window, HEALTHY otherwise.
func displayStatus(history []model.ExecutionRecord, now time.Time, freshness time.Duration) model.HealthStatus {
	if st := health.CheckExecutionStatus(history); st.Status != model.HealthHealthy {
		return st.Status
	}
	if health.Freshness(history, now, freshness).Status == model.HealthStale {
		return model.HealthStale
	}
	return model.HealthHealthy
}

// Ownership lists one row per (owner, asset) pair. Assets without owners
// do not appear.
func (r *Reporter) Ownership(ctx context.Context) []OwnershipRow {
	assets := r.assets(ctx, "ownership")
	rows := make([]OwnershipRow, 0, len(assets))
	for _, a := range assets {
		for _, owner := range a.Owners {
			rows = append(rows, OwnershipRow{
				Owner:    owner,
				AssetKey: a.AssetKey,
				Name:     a.Name,
				Type:     a.Type,
				Group:    a.Group,
			})
		}
	}
	return rows
}

// Alerts counts active alerts by severity.
func (r *Reporter) Alerts(ctx context.Context) AlertCounts {
	alerts, err := r.store.ActiveAlerts(ctx, "")
	if err != nil {
		r.logger.Warn("report degraded", "view", "alerts", "error", err)
		return AlertCounts{}
	}
	var c AlertCounts
	for _, a := range alerts {
		c.Total++
		switch a.Severity {
		case model.SeverityHigh:
			c.High++
		case model.SeverityMedium:
			c.Medium++
		case model.SeverityLow:
			c.Low++
		}
	}
	return c
}
