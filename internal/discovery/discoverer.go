package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/assetgov/internal/registry"
)

// DefaultDebounce is how long Watch waits after the last file event before
// rescanning.
const DefaultDebounce = 500 * time.Millisecond

// Result counts the outcome of one registration pass.
type Result struct {
	Registered   int `json:"registered"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	Invalid      int `json:"invalid"`
	LineageEdges int `json:"lineage_edges"`
}

// Discoverer registers definitions with a registry.
type Discoverer struct {
	registry *registry.Registry
	logger   *slog.Logger
	debounce time.Duration
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Discoverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDebounce sets the quiet period Watch waits for before rescanning.
func WithDebounce(delay time.Duration) Option {
	return func(d *Discoverer) {
		if delay > 0 {
			d.debounce = delay
		}
	}
}

// New creates a Discoverer that writes to reg.
func New(reg *registry.Registry, opts ...Option) *Discoverer {
	d := &Discoverer{
		registry: reg,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ShouldRun reports whether a discovery pass is due. A zero last means
// discovery has never run.
func ShouldRun(last time.Time, interval time.Duration, now time.Time) bool {
	if last.IsZero() || interval <= 0 {
		return true
	}
	return now.Sub(last) >= interval
}

// Register writes every definition to the registry, then records a lineage
// edge from each dependency to its dependent asset.
//
// A definition that fails to register is logged and counted in Failed; the
// rest of the batch still runs. Debounced definitions count as Skipped and
// still get their lineage edges. The only error returned is ctx's.
func (d *Discoverer) Register(ctx context.Context, defs []Definition) (Result, error) {
	var res Result
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		written, err := d.registry.RegisterOrUpdate(ctx, def.ToSpec())
		if err != nil {
			res.Failed++
			d.logger.Warn("asset registration failed",
				"asset_key", def.Key,
				"source", def.Source.String(),
				"error", err)
			continue
		}
		if written {
			res.Registered++
		} else {
			res.Skipped++
		}

		for _, dep := range def.Dependencies {
			inserted, err := d.registry.AddLineage(ctx, dep, def.Key)
			if err != nil {
				d.logger.Warn("lineage edge failed",
					"upstream", dep,
					"downstream", def.Key,
					"error", err)
				continue
			}
			if inserted {
				res.LineageEdges++
			}
		}
	}
	return res, nil
}

// Run loads dir and registers what it finds. Invalid definitions are logged
// and counted; they never stop the pass.
func (d *Discoverer) Run(ctx context.Context, dir string) (Result, error) {
	cat, err := LoadDir(dir)
	if err != nil {
		return Result{}, err
	}
	for _, problem := range cat.Problems {
		d.logger.Warn("invalid asset definition", "error", problem)
	}

	res, err := d.Register(ctx, cat.Definitions)
	res.Invalid = len(cat.Problems)
	if err != nil {
		return res, fmt.Errorf("discover %s: %w", dir, err)
	}

	d.logger.Info("discovery complete",
		"dir", dir,
		"files", cat.Files,
		"registered", res.Registered,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"invalid", res.Invalid,
		"lineage_edges", res.LineageEdges)
	return res, nil
}
