package store

import (
	"context"
	"fmt"

	"github.com/roach88/assetgov/internal/model"
)

// AddLineageEdge records upstream -> downstream. An existing edge for the
// same pair is left untouched and inserted is false. An empty relationship
// defaults to model.DefaultRelationship.
func (s *Store) AddLineageEdge(ctx context.Context, upstream, downstream, relationship string) (inserted bool, err error) {
	if relationship == "" {
		relationship = model.DefaultRelationship
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_lineage (upstream_asset_key, downstream_asset_key, relationship_type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(upstream_asset_key, downstream_asset_key) DO NOTHING
	`, upstream, downstream, relationship, s.now())
	if err != nil {
		return false, fmt.Errorf("add lineage %s -> %s: %w", upstream, downstream, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add lineage %s -> %s: %w", upstream, downstream, err)
	}
	return n > 0, nil
}

// Upstream returns the registered assets that key depends on (one hop).
// Edges pointing at unregistered keys are omitted; use Edges for raw pairs.
func (s *Store) Upstream(ctx context.Context, key string) ([]model.AssetRecord, error) {
	return s.lineageNeighbours(ctx, key,
		`l.upstream_asset_key = a.asset_key WHERE l.downstream_asset_key = ?`, "upstream")
}

// Downstream returns the registered assets that depend on key (one hop).
func (s *Store) Downstream(ctx context.Context, key string) ([]model.AssetRecord, error) {
	return s.lineageNeighbours(ctx, key,
		`l.downstream_asset_key = a.asset_key WHERE l.upstream_asset_key = ?`, "downstream")
}

func (s *Store) lineageNeighbours(ctx context.Context, key, join, op string) ([]model.AssetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.asset_key, a.asset_name, a.asset_type, a.group_name, a.pipeline_name,
		       a.owners, a.tags, a.metadata, a.dependencies, a.config, a.system_info,
		       a.last_updated, a.last_checked, a.version
		FROM asset_lineage l
		JOIN assets a ON `+join+`
		ORDER BY a.asset_key ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, key, err)
	}
	defer rows.Close()
	return collectAssets(rows, op+" "+key)
}

// Edges returns every edge touching key in either direction, oldest first.
func (s *Store) Edges(ctx context.Context, key string) ([]model.LineageEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, upstream_asset_key, downstream_asset_key, relationship_type, created_at
		FROM asset_lineage
		WHERE upstream_asset_key = ? OR downstream_asset_key = ?
		ORDER BY id ASC
	`, key, key)
	if err != nil {
		return nil, fmt.Errorf("lineage edges %s: %w", key, err)
	}
	defer rows.Close()

	edges := []model.LineageEdge{}
	for rows.Next() {
		var (
			e       model.LineageEdge
			created string
		)
		if err := rows.Scan(&e.ID, &e.Upstream, &e.Downstream, &e.RelationshipType, &created); err != nil {
			return nil, fmt.Errorf("scan lineage edge: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("lineage edge %d: %w", e.ID, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lineage edges: %w", err)
	}
	return edges, nil
}

// CountLineageEdges returns the number of stored edges.
func (s *Store) CountLineageEdges(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM asset_lineage`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count lineage edges: %w", err)
	}
	return n, nil
}
