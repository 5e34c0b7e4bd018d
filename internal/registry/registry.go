// Package registry maintains asset definitions on top of the store:
// debounced upserts, system-info enrichment and liveness-filtered listing.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/roach88/assetgov/internal/clock"
	"github.com/roach88/assetgov/internal/metrics"
	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/store"
	"github.com/roach88/assetgov/internal/sysinfo"
)

// DefaultUpdateInterval is the registration debounce window.
const DefaultUpdateInterval = 900 * time.Second

// livenessFactor multiplies the update interval to get the window past
// which an asset is no longer considered tracked.
const livenessFactor = 8

// Registry is the asset registry service.
type Registry struct {
	store    *store.Store
	clock    clock.Clock
	interval time.Duration
	system   sysinfo.Snapshot
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source. Defaults to clock.System.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = clock.OrSystem(c) }
}

// WithUpdateInterval sets the debounce window. Zero disables debouncing.
func WithUpdateInterval(d time.Duration) Option {
	return func(r *Registry) { r.interval = d }
}

// WithSystemInfo sets the snapshot merged into every registration.
// Defaults to sysinfo.Collect with no overrides.
func WithSystemInfo(s sysinfo.Snapshot) Option {
	return func(r *Registry) { r.system = s }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates a Registry backed by st.
func New(st *store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:    st,
		clock:    clock.System{},
		interval: DefaultUpdateInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.system == (sysinfo.Snapshot{}) {
		r.system = sysinfo.Collect(sysinfo.Options{})
	}
	return r
}

// UpdateInterval returns the configured debounce window.
func (r *Registry) UpdateInterval() time.Duration { return r.interval }

// ShouldUpdate reports whether key may be written now: it has never been
// registered, or the update interval has elapsed since its last_checked.
func (r *Registry) ShouldUpdate(ctx context.Context, key string) (bool, error) {
	key, err := model.NormalizeAssetKey(key)
	if err != nil {
		return false, err
	}
	return r.shouldUpdate(ctx, key, r.clock.Now())
}

func (r *Registry) shouldUpdate(ctx context.Context, key string, now time.Time) (bool, error) {
	last, found, err := r.store.AssetLastChecked(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return now.Sub(last) >= r.interval, nil
}

// RegisterOrUpdate writes spec unless the asset was written within the
// update interval. Returns true iff a write occurred.
//
// On write the system-info snapshot is merged into metadata under
// "system_info", the environment and project tags are merged into tags, and
// every other field is overwritten. The debounce read and the upsert are
// separate statements: two concurrent callers may both write, each
// incrementing the version.
func (r *Registry) RegisterOrUpdate(ctx context.Context, spec model.AssetSpec) (bool, error) {
	key, err := model.NormalizeAssetKey(spec.AssetKey)
	if err != nil {
		r.metrics.Registration("failed")
		return false, err
	}

	now := r.clock.Now()
	ok, err := r.shouldUpdate(ctx, key, now)
	if err != nil {
		r.metrics.Registration("failed")
		return false, fmt.Errorf("register %s: %w", key, err)
	}
	if !ok {
		r.logger.Debug("registration debounced", "asset_key", key)
		r.metrics.Registration("debounced")
		return false, nil
	}

	rec := r.record(key, spec, now)
	version, err := r.store.UpsertAsset(ctx, rec)
	if err != nil {
		r.metrics.Registration("failed")
		return false, fmt.Errorf("register %s: %w", key, err)
	}

	r.logger.Info("asset registered", "asset_key", key, "version", version)
	r.metrics.Registration("written")
	return true, nil
}

func (r *Registry) record(key string, spec model.AssetSpec, now time.Time) model.AssetRecord {
	system := r.system.Map()

	metadata := make(map[string]any, len(spec.Metadata)+2)
	maps.Copy(metadata, spec.Metadata)
	metadata["system_info"] = system
	metadata["registration_timestamp"] = now.UTC().Format(time.RFC3339Nano)

	tags := make(map[string]string, len(spec.Tags)+2)
	maps.Copy(tags, spec.Tags)
	tags["environment"] = r.system.Environment
	tags["project"] = r.system.ProjectName

	name := spec.Name
	if name == "" {
		name = key
	}
	assetType := spec.Type
	if assetType == "" {
		assetType = model.AssetTypeUnknown
	}

	return model.AssetRecord{
		AssetKey:     key,
		Name:         name,
		Type:         assetType,
		Group:        spec.Group,
		Pipeline:     spec.Pipeline,
		Owners:       nonNilStrings(spec.Owners),
		Tags:         tags,
		Metadata:     metadata,
		Dependencies: spec.Dependencies,
		Config:       spec.Config,
		SystemInfo:   system,
		LastUpdated:  now,
		LastChecked:  now,
	}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Get returns the asset for key. found is false when it does not exist.
func (r *Registry) Get(ctx context.Context, key string) (rec model.AssetRecord, found bool, err error) {
	key, err = model.NormalizeAssetKey(key)
	if err != nil {
		return model.AssetRecord{}, false, err
	}
	rec, err = r.store.GetAsset(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return model.AssetRecord{}, false, nil
	}
	if err != nil {
		return model.AssetRecord{}, false, err
	}
	return rec, true, nil
}

// GetAll lists assets ordered by key. Unless includeStale is set, assets
// whose last_checked is older than 8 update intervals are omitted. Rows are
// never deleted.
func (r *Registry) GetAll(ctx context.Context, includeStale bool) ([]model.AssetRecord, error) {
	if includeStale || r.interval <= 0 {
		return r.store.ListAssets(ctx, nil)
	}
	cutoff := r.clock.Now().Add(-livenessFactor * r.interval)
	return r.store.ListAssets(ctx, &cutoff)
}

// UpdateSchema replaces the recorded columns of an asset.
func (r *Registry) UpdateSchema(ctx context.Context, key string, cols []model.SchemaColumn) error {
	key, err := model.NormalizeAssetKey(key)
	if err != nil {
		return err
	}
	return r.store.ReplaceAssetSchema(ctx, key, cols)
}

// Schema returns the recorded columns of an asset in order.
func (r *Registry) Schema(ctx context.Context, key string) ([]model.SchemaColumn, error) {
	key, err := model.NormalizeAssetKey(key)
	if err != nil {
		return nil, err
	}
	return r.store.AssetSchema(ctx, key)
}

// RecordMetric appends a numeric observation for an asset.
func (r *Registry) RecordMetric(ctx context.Context, key, name string, value float64) error {
	key, err := model.NormalizeAssetKey(key)
	if err != nil {
		return err
	}
	_, err = r.store.RecordMetric(ctx, key, name, value, r.clock.Now())
	return err
}

// Metrics returns observations for an asset, newest first.
func (r *Registry) Metrics(ctx context.Context, key, name string, limit int) ([]model.Metric, error) {
	key, err := model.NormalizeAssetKey(key)
	if err != nil {
		return nil, err
	}
	return r.store.Metrics(ctx, key, name, limit)
}

// AddLineage records upstream -> downstream with the default relationship.
func (r *Registry) AddLineage(ctx context.Context, upstream, downstream string) (bool, error) {
	up, err := model.NormalizeAssetKey(upstream)
	if err != nil {
		return false, err
	}
	down, err := model.NormalizeAssetKey(downstream)
	if err != nil {
		return false, err
	}
	return r.store.AddLineageEdge(ctx, up, down, model.DefaultRelationship)
}
