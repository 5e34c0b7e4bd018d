package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/assetgov/internal/model"
)

const assetColumns = `asset_key, asset_name, asset_type, group_name, pipeline_name,
	owners, tags, metadata, dependencies, config, system_info,
	last_updated, last_checked, version`

// UpsertAsset inserts rec with version 1 or overwrites the existing row and
// increments its version. The increment happens in the same statement as
// the write. Returns the stored version.
//
// rec.LastUpdated and rec.LastChecked are written as given; the caller owns
// the clock so that debounce decisions and stamps agree.
func (s *Store) UpsertAsset(ctx context.Context, rec model.AssetRecord) (int64, error) {
	args, err := assetArgs(rec)
	if err != nil {
		return 0, fmt.Errorf("upsert asset %s: %w", rec.AssetKey, err)
	}

	var version int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(asset_key) DO UPDATE SET
			asset_name    = excluded.asset_name,
			asset_type    = excluded.asset_type,
			group_name    = excluded.group_name,
			pipeline_name = excluded.pipeline_name,
			owners        = excluded.owners,
			tags          = excluded.tags,
			metadata      = excluded.metadata,
			dependencies  = excluded.dependencies,
			config        = excluded.config,
			system_info   = excluded.system_info,
			last_updated  = excluded.last_updated,
			last_checked  = excluded.last_checked,
			version       = assets.version + 1
		RETURNING version
	`, args...).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("upsert asset %s: %w", rec.AssetKey, err)
	}
	return version, nil
}

func assetArgs(rec model.AssetRecord) ([]any, error) {
	owners, err := marshalJSON(rec.Owners)
	if err != nil {
		return nil, fmt.Errorf("owners: %w", err)
	}
	tags, err := marshalJSON(rec.Tags)
	if err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}
	metadata, err := marshalJSON(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	deps, err := marshalJSON(rec.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("dependencies: %w", err)
	}
	cfg, err := marshalJSON(rec.Config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	sysInfo, err := marshalJSON(rec.SystemInfo)
	if err != nil {
		return nil, fmt.Errorf("system info: %w", err)
	}
	assetType := rec.Type
	if assetType == "" {
		assetType = model.AssetTypeUnknown
	}
	return []any{
		rec.AssetKey, rec.Name, string(assetType), nullString(rec.Group), nullString(rec.Pipeline),
		owners, tags, metadata, deps, cfg, sysInfo,
		formatTime(rec.LastUpdated), formatTime(rec.LastChecked),
	}, nil
}

// GetAsset returns the asset with the given key, or ErrNotFound.
func (s *Store) GetAsset(ctx context.Context, key string) (model.AssetRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE asset_key = ?`, key)
	rec, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AssetRecord{}, fmt.Errorf("get asset %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return model.AssetRecord{}, fmt.Errorf("get asset %s: %w", key, err)
	}
	return rec, nil
}

// AssetLastChecked returns the last_checked stamp of an asset.
// found is false when the asset has never been registered.
func (s *Store) AssetLastChecked(ctx context.Context, key string) (lastChecked time.Time, found bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT last_checked FROM assets WHERE asset_key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("asset last checked %s: %w", key, err)
	}
	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("asset last checked %s: %w", key, err)
	}
	return t, true, nil
}

// ListAssets returns all assets ordered by key. When checkedSince is non-nil
// only assets with last_checked at or after it are returned.
// Returns an empty slice (not nil) if none match.
func (s *Store) ListAssets(ctx context.Context, checkedSince *time.Time) ([]model.AssetRecord, error) {
	query := `SELECT ` + assetColumns + ` FROM assets`
	var args []any
	if checkedSince != nil {
		query += ` WHERE last_checked >= ?`
		args = append(args, formatTime(*checkedSince))
	}
	query += ` ORDER BY asset_key ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows, "list assets")
}

func collectAssets(rows *sql.Rows, op string) ([]model.AssetRecord, error) {
	assets := []model.AssetRecord{}
	for rows.Next() {
		rec, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		assets = append(assets, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return assets, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(sc rowScanner) (model.AssetRecord, error) {
	var (
		rec                                   model.AssetRecord
		assetType                             string
		group, pipeline                       sql.NullString
		owners, tags, metadata, deps, cfg, si sql.NullString
		lastUpdated, lastChecked              string
	)
	if err := sc.Scan(
		&rec.AssetKey, &rec.Name, &assetType, &group, &pipeline,
		&owners, &tags, &metadata, &deps, &cfg, &si,
		&lastUpdated, &lastChecked, &rec.Version,
	); err != nil {
		return model.AssetRecord{}, err
	}
	rec.Type = model.ParseAssetType(assetType)
	rec.Group = group.String
	rec.Pipeline = pipeline.String

	for _, col := range []struct {
		name string
		src  sql.NullString
		dst  any
	}{
		{"owners", owners, &rec.Owners},
		{"tags", tags, &rec.Tags},
		{"metadata", metadata, &rec.Metadata},
		{"dependencies", deps, &rec.Dependencies},
		{"config", cfg, &rec.Config},
		{"system_info", si, &rec.SystemInfo},
	} {
		if err := unmarshalJSON(col.src, col.dst); err != nil {
			return model.AssetRecord{}, fmt.Errorf("%s %s: %w", rec.AssetKey, col.name, err)
		}
	}

	var err error
	if rec.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return model.AssetRecord{}, err
	}
	if rec.LastChecked, err = parseTime(lastChecked); err != nil {
		return model.AssetRecord{}, err
	}
	return rec, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
