package jobs

import (
	"context"
	"errors"

	"github.com/roach88/assetgov/internal/discovery"
	"github.com/roach88/assetgov/internal/model"
)

// Discover scans the definitions directory and registers what it finds.
// The job's config may override the directory with "definitions_dir".
// A pass is skipped when the previous one, scheduled or watcher-triggered,
// ran less than the discovery interval ago.
func (r *Runner) Discover(ctx context.Context, job model.Job) (map[string]any, error) {
	dir := r.definitionsDir
	if d, ok := job.Config["definitions_dir"].(string); ok && d != "" {
		dir = d
	}

	r.mu.Lock()
	last := r.lastDiscovery
	r.mu.Unlock()
	if !discovery.ShouldRun(last, r.discoveryInterval, r.clock.Now()) {
		r.logger.Debug("discovery not due", "last_run", last)
		return map[string]any{"skipped": true}, nil
	}

	res, err := r.DiscoverNow(ctx, dir)
	if errors.Is(err, discovery.ErrNoDefinitions) {
		r.logger.Info("no asset definitions", "dir", dir)
		return map[string]any{"definitions": 0}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"registered":    res.Registered,
		"skipped":       res.Skipped,
		"failed":        res.Failed,
		"invalid":       res.Invalid,
		"lineage_edges": res.LineageEdges,
	}, nil
}

// DiscoverNow runs a discovery pass over dir unconditionally.
func (r *Runner) DiscoverNow(ctx context.Context, dir string) (discovery.Result, error) {
	if dir == "" {
		return discovery.Result{}, errors.New("discover: no definitions directory configured")
	}
	res, err := r.discoverer.Run(ctx, dir)
	if err != nil && !errors.Is(err, discovery.ErrNoDefinitions) {
		return res, err
	}

	r.mu.Lock()
	r.lastDiscovery = r.clock.Now()
	r.mu.Unlock()
	return res, err
}
