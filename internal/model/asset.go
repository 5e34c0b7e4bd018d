package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// AssetType classifies an asset by its role in a pipeline.
type AssetType string

const (
	AssetTypeSource    AssetType = "source"
	AssetTypeTransform AssetType = "transform"
	AssetTypeSink      AssetType = "sink"
	AssetTypeUnknown   AssetType = "unknown"
)

// ParseAssetType maps free-form input onto the known asset types.
// Anything unrecognized is AssetTypeUnknown.
func ParseAssetType(s string) AssetType {
	switch AssetType(strings.ToLower(strings.TrimSpace(s))) {
	case AssetTypeSource:
		return AssetTypeSource
	case AssetTypeTransform:
		return AssetTypeTransform
	case AssetTypeSink:
		return AssetTypeSink
	default:
		return AssetTypeUnknown
	}
}

// ErrInvalidAssetKey is returned for empty or malformed asset keys.
var ErrInvalidAssetKey = errors.New("invalid asset key")

// NormalizeAssetKey trims and NFC-normalizes an asset key so that visually
// identical keys map to the same registry row.
//
// Keys are dot-delimited namespace paths ("domain.asset_name"). Empty keys
// and keys with empty path segments are rejected.
func NormalizeAssetKey(key string) (string, error) {
	k := norm.NFC.String(strings.TrimSpace(key))
	if k == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAssetKey)
	}
	for _, seg := range strings.Split(k, ".") {
		if seg == "" {
			return "", fmt.Errorf("%w: %q has an empty segment", ErrInvalidAssetKey, key)
		}
	}
	return k, nil
}

// AssetRecord is a registered asset definition.
//
// AssetKey uniquely identifies at most one record. Version starts at 1 and
// is incremented on every successful update; records are never deleted.
type AssetRecord struct {
	AssetKey     string            `json:"asset_key"`
	Name         string            `json:"asset_name"`
	Type         AssetType         `json:"asset_type"`
	Group        string            `json:"group_name"`
	Pipeline     string            `json:"pipeline_name"`
	Owners       []string          `json:"owners"`
	Tags         map[string]string `json:"tags"`
	Metadata     map[string]any    `json:"metadata"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Config       map[string]any    `json:"config,omitempty"`
	SystemInfo   map[string]any    `json:"system_info,omitempty"`
	LastUpdated  time.Time         `json:"last_updated"`
	LastChecked  time.Time         `json:"last_checked"`
	Version      int64             `json:"version"`
}

// AssetSpec is the caller-supplied portion of an asset registration.
// Dependencies and Config are optional.
type AssetSpec struct {
	AssetKey     string
	Name         string
	Type         AssetType
	Group        string
	Pipeline     string
	Owners       []string
	Tags         map[string]string
	Metadata     map[string]any
	Dependencies []string
	Config       map[string]any
}

// SchemaColumn describes one column of an asset's tabular shape.
type SchemaColumn struct {
	Name       string    `json:"column_name"`
	DataType   string    `json:"data_type"`
	IsNullable bool      `json:"is_nullable"`
	LastSeen   time.Time `json:"last_seen"`
}

// Metric is a single recorded numeric observation for an asset.
type Metric struct {
	ID         int64     `json:"id"`
	AssetKey   string    `json:"asset_key"`
	Name       string    `json:"metric_name"`
	Value      float64   `json:"metric_value"`
	RecordedAt time.Time `json:"recorded_at"`
}
