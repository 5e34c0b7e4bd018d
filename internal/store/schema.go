package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/assetgov/internal/model"
)

// ReplaceAssetSchema replaces every recorded column of an asset with cols in
// one transaction. Column order is preserved.
func (s *Store) ReplaceAssetSchema(ctx context.Context, key string, cols []model.SchemaColumn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace schema %s: begin: %w", key, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM asset_schemas WHERE asset_key = ?`, key); err != nil {
		return fmt.Errorf("replace schema %s: clear: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO asset_schemas (asset_key, column_name, data_type, is_nullable, position, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("replace schema %s: prepare: %w", key, err)
	}
	defer stmt.Close()

	now := s.clock.Now()
	for i, col := range cols {
		seen := col.LastSeen
		if seen.IsZero() {
			seen = now
		}
		if _, err := stmt.ExecContext(ctx, key, col.Name, col.DataType, col.IsNullable, i, formatTime(seen)); err != nil {
			return fmt.Errorf("replace schema %s: column %s: %w", key, col.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace schema %s: commit: %w", key, err)
	}
	return nil
}

// AssetSchema returns the recorded columns of an asset in their original order.
func (s *Store) AssetSchema(ctx context.Context, key string) ([]model.SchemaColumn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, last_seen
		FROM asset_schemas
		WHERE asset_key = ?
		ORDER BY position ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("asset schema %s: %w", key, err)
	}
	defer rows.Close()

	cols := []model.SchemaColumn{}
	for rows.Next() {
		var (
			col  model.SchemaColumn
			seen string
		)
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &seen); err != nil {
			return nil, fmt.Errorf("scan schema column: %w", err)
		}
		if col.LastSeen, err = parseTime(seen); err != nil {
			return nil, fmt.Errorf("schema column %s: %w", col.Name, err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema columns: %w", err)
	}
	return cols, nil
}

// RecordMetric appends a numeric observation for an asset.
// A zero at is stamped with the store clock.
func (s *Store) RecordMetric(ctx context.Context, key, name string, value float64, at time.Time) (int64, error) {
	recorded := s.now()
	if !at.IsZero() {
		recorded = formatTime(at)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_metrics (asset_key, metric_name, metric_value, recorded_at)
		VALUES (?, ?, ?, ?)
	`, key, name, value, recorded)
	if err != nil {
		return 0, fmt.Errorf("record metric %s/%s: %w", key, name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record metric %s/%s: %w", key, name, err)
	}
	return id, nil
}

// Metrics returns observations of one metric for an asset, newest first.
// An empty name returns every metric. limit <= 0 means no limit.
func (s *Store) Metrics(ctx context.Context, key, name string, limit int) ([]model.Metric, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, asset_key, metric_name, metric_value, recorded_at FROM asset_metrics WHERE asset_key = ?`
	args := []any{key}
	if name != "" {
		query += ` AND metric_name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metrics %s: %w", key, err)
	}
	defer rows.Close()

	metrics := []model.Metric{}
	for rows.Next() {
		var (
			m        model.Metric
			recorded string
		)
		if err := rows.Scan(&m.ID, &m.AssetKey, &m.Name, &m.Value, &recorded); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if m.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, fmt.Errorf("metric %d: %w", m.ID, err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return metrics, nil
}
