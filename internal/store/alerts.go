package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/assetgov/internal/model"
)

const alertSelect = `SELECT id, asset_key, alert_type, severity, message, metadata, created_at, resolved_at FROM asset_alerts`

// CreateAlert inserts an active alert and returns its id.
func (s *Store) CreateAlert(ctx context.Context, key, alertType string, severity model.Severity, message string, metadata map[string]any) (int64, error) {
	meta, err := marshalJSON(metadata)
	if err != nil {
		return 0, fmt.Errorf("create alert %s: %w", key, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_alerts (asset_key, alert_type, severity, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, alertType, string(severity), message, meta, s.now())
	if err != nil {
		return 0, fmt.Errorf("create alert %s: %w", key, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create alert %s: %w", key, err)
	}
	return id, nil
}

// ResolveAlert stamps resolved_at on an active alert. Resolving an already
// resolved or unknown id changes nothing; resolved reports whether a row
// transitioned.
func (s *Store) ResolveAlert(ctx context.Context, id int64) (resolved bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE asset_alerts SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		s.now(), id)
	if err != nil {
		return false, fmt.Errorf("resolve alert %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve alert %d: %w", id, err)
	}
	return n > 0, nil
}

// Alert returns one alert by id, or ErrNotFound.
func (s *Store) Alert(ctx context.Context, id int64) (model.Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, alertSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Alert{}, fmt.Errorf("alert %d: %w", id, err)
	}
	return a, nil
}

// ActiveAlerts returns unresolved alerts newest first. An empty key returns
// active alerts for every asset.
func (s *Store) ActiveAlerts(ctx context.Context, key string) ([]model.Alert, error) {
	query := alertSelect + ` WHERE resolved_at IS NULL`
	var args []any
	if key != "" {
		query += ` AND asset_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("active alerts: %w", err)
	}
	defer rows.Close()

	alerts := []model.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("active alerts: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("active alerts: %w", err)
	}
	return alerts, nil
}

func scanAlert(sc rowScanner) (model.Alert, error) {
	var (
		a                 model.Alert
		severity          string
		message, metadata sql.NullString
		created           string
		resolved          sql.NullString
	)
	if err := sc.Scan(&a.ID, &a.AssetKey, &a.Type, &severity, &message, &metadata, &created, &resolved); err != nil {
		return model.Alert{}, err
	}
	a.Severity = model.Severity(severity)
	a.Message = message.String
	if err := unmarshalJSON(metadata, &a.Metadata); err != nil {
		return model.Alert{}, fmt.Errorf("alert %d metadata: %w", a.ID, err)
	}
	var err error
	if a.CreatedAt, err = parseTime(created); err != nil {
		return model.Alert{}, err
	}
	if a.ResolvedAt, err = parseNullTime(resolved); err != nil {
		return model.Alert{}, err
	}
	return a, nil
}
