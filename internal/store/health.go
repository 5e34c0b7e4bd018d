package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/assetgov/internal/model"
)

// SaveHealthCheck appends one sub-check result for an asset.
// A zero CheckedAt is stamped with the store clock.
func (s *Store) SaveHealthCheck(ctx context.Context, key string, res model.CheckResult) (int64, error) {
	details, err := marshalJSON(res.Details)
	if err != nil {
		return 0, fmt.Errorf("save health check %s: %w", key, err)
	}
	checked := s.now()
	if !res.CheckedAt.IsZero() {
		checked = formatTime(res.CheckedAt)
	}
	r, err := s.db.ExecContext(ctx, `
		INSERT INTO health_checks (asset_key, check_type, status, message, details, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, string(res.Type), string(res.Status), res.Message, details, checked)
	if err != nil {
		return 0, fmt.Errorf("save health check %s: %w", key, err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save health check %s: %w", key, err)
	}
	return id, nil
}

// HealthChecks returns stored sub-check results for an asset, newest first.
// limit <= 0 means no limit.
func (s *Store) HealthChecks(ctx context.Context, key string, limit int) ([]model.CheckResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_key, check_type, status, message, details, checked_at
		FROM health_checks
		WHERE asset_key = ?
		ORDER BY checked_at DESC, id DESC
		LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("health checks %s: %w", key, err)
	}
	defer rows.Close()

	checks := []model.CheckResult{}
	for rows.Next() {
		var (
			c                 model.CheckResult
			checkType, status string
			message, details  sql.NullString
			checked           string
		)
		if err := rows.Scan(&c.ID, &c.AssetKey, &checkType, &status, &message, &details, &checked); err != nil {
			return nil, fmt.Errorf("scan health check: %w", err)
		}
		c.Type = model.CheckType(checkType)
		c.Status = model.HealthStatus(status)
		c.Message = message.String
		if err := unmarshalJSON(details, &c.Details); err != nil {
			return nil, fmt.Errorf("health check %d details: %w", c.ID, err)
		}
		if c.CheckedAt, err = parseTime(checked); err != nil {
			return nil, fmt.Errorf("health check %d: %w", c.ID, err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health checks: %w", err)
	}
	return checks, nil
}

// SummaryTransition computes the next summary from the previous one.
// prev is nil on the first evaluation of an asset.
type SummaryTransition func(prev *model.HealthSummary) model.HealthSummary

// UpdateHealthSummary reads the current summary for key, applies next, and
// writes the result in one transaction. The stored row always carries key.
func (s *Store) UpdateHealthSummary(ctx context.Context, key string, next SummaryTransition) (model.HealthSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.HealthSummary{}, fmt.Errorf("update health summary %s: begin: %w", key, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var prev *model.HealthSummary
	cur, err := scanSummary(tx.QueryRowContext(ctx, summarySelect+` WHERE asset_key = ?`, key))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return model.HealthSummary{}, fmt.Errorf("update health summary %s: %w", key, err)
	default:
		prev = &cur
	}

	sum := next(prev)
	sum.AssetKey = key
	if sum.LastChecked.IsZero() {
		sum.LastChecked = s.clock.Now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO health_summary (asset_key, overall_status, last_healthy, failure_count, last_checked)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(asset_key) DO UPDATE SET
			overall_status = excluded.overall_status,
			last_healthy   = excluded.last_healthy,
			failure_count  = excluded.failure_count,
			last_checked   = excluded.last_checked
	`, key, string(sum.OverallStatus), formatTimePtr(sum.LastHealthy), sum.FailureCount, formatTime(sum.LastChecked))
	if err != nil {
		return model.HealthSummary{}, fmt.Errorf("update health summary %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return model.HealthSummary{}, fmt.Errorf("update health summary %s: commit: %w", key, err)
	}
	return sum, nil
}

const summarySelect = `SELECT asset_key, overall_status, last_healthy, failure_count, last_checked FROM health_summary`

// HealthSummary returns the rolled-up health of an asset, or ErrNotFound.
func (s *Store) HealthSummary(ctx context.Context, key string) (model.HealthSummary, error) {
	sum, err := scanSummary(s.db.QueryRowContext(ctx, summarySelect+` WHERE asset_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return model.HealthSummary{}, fmt.Errorf("health summary %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return model.HealthSummary{}, fmt.Errorf("health summary %s: %w", key, err)
	}
	return sum, nil
}

// HealthSummaries returns summaries ordered by asset key. An empty status
// returns every summary; otherwise only those with that overall status.
func (s *Store) HealthSummaries(ctx context.Context, status model.HealthStatus) ([]model.HealthSummary, error) {
	query := summarySelect
	var args []any
	if status != "" {
		query += ` WHERE overall_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY asset_key ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("health summaries: %w", err)
	}
	defer rows.Close()

	sums := []model.HealthSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("health summaries: %w", err)
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("health summaries: %w", err)
	}
	return sums, nil
}

func scanSummary(sc rowScanner) (model.HealthSummary, error) {
	var (
		sum         model.HealthSummary
		status      string
		lastHealthy sql.NullString
		lastChecked string
	)
	if err := sc.Scan(&sum.AssetKey, &status, &lastHealthy, &sum.FailureCount, &lastChecked); err != nil {
		return model.HealthSummary{}, err
	}
	sum.OverallStatus = model.HealthStatus(status)
	var err error
	if sum.LastHealthy, err = parseNullTime(lastHealthy); err != nil {
		return model.HealthSummary{}, err
	}
	if sum.LastChecked, err = parseTime(lastChecked); err != nil {
		return model.HealthSummary{}, err
	}
	return sum, nil
}
