package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/assetgov/internal/model"
)

// SaveExecution appends an execution record and returns its id.
// records_processed is stored as given, including negative values.
// A zero StartedAt is stamped with the store clock.
func (s *Store) SaveExecution(ctx context.Context, rec model.ExecutionRecord) (int64, error) {
	metadata, err := marshalJSON(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("save execution %s: %w", rec.AssetKey, err)
	}
	started := s.now()
	if !rec.StartedAt.IsZero() {
		started = formatTime(rec.StartedAt)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_executions
			(asset_key, run_id, status, window_start, window_end,
			 records_processed, metadata, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.AssetKey, rec.RunID, string(rec.Status),
		formatTimePtr(rec.WindowStart), formatTimePtr(rec.WindowEnd),
		nullInt64(rec.RecordsProcessed), metadata, started, formatTimePtr(rec.CompletedAt))
	if err != nil {
		return 0, fmt.Errorf("save execution %s: %w", rec.AssetKey, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save execution %s: %w", rec.AssetKey, err)
	}
	return id, nil
}

// Executions returns the most recent executions for an asset, newest first.
// Ties on started_at are broken by insertion order. limit <= 0 means no limit.
// Returns an empty slice (not nil) if the asset has no executions.
func (s *Store) Executions(ctx context.Context, key string, limit int) ([]model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unbounded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_key, run_id, status, window_start, window_end,
		       records_processed, metadata, started_at, completed_at
		FROM asset_executions
		WHERE asset_key = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("executions %s: %w", key, err)
	}
	defer rows.Close()

	execs := []model.ExecutionRecord{}
	for rows.Next() {
		var (
			rec                    model.ExecutionRecord
			status, started        string
			winStart, winEnd, done sql.NullString
			records                sql.NullInt64
			metadata               sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.AssetKey, &rec.RunID, &status,
			&winStart, &winEnd, &records, &metadata, &started, &done); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		rec.Status = model.ExecutionStatus(status)
		if records.Valid {
			rec.RecordsProcessed = model.Int64(records.Int64)
		}
		if err := unmarshalJSON(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("execution %d metadata: %w", rec.ID, err)
		}
		if rec.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("execution %d: %w", rec.ID, err)
		}
		if rec.WindowStart, err = parseNullTime(winStart); err != nil {
			return nil, fmt.Errorf("execution %d: %w", rec.ID, err)
		}
		if rec.WindowEnd, err = parseNullTime(winEnd); err != nil {
			return nil, fmt.Errorf("execution %d: %w", rec.ID, err)
		}
		if rec.CompletedAt, err = parseNullTime(done); err != nil {
			return nil, fmt.Errorf("execution %d: %w", rec.ID, err)
		}
		execs = append(execs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return execs, nil
}

// LastExecution returns the newest execution for an asset, or ErrNotFound.
func (s *Store) LastExecution(ctx context.Context, key string) (model.ExecutionRecord, error) {
	execs, err := s.Executions(ctx, key, 1)
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	if len(execs) == 0 {
		return model.ExecutionRecord{}, fmt.Errorf("last execution %s: %w", key, ErrNotFound)
	}
	return execs[0], nil
}
