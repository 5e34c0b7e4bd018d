package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgov/internal/model"
)

func TestUpsertAsset_InsertThenUpdateIncrementsVersion(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	rec := testAsset("sales.orders", clk.Now())
	v, err := s.UpsertAsset(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	for want := int64(2); want <= 4; want++ {
		rec.LastChecked = clk.Advance(time.Hour)
		v, err = s.UpsertAsset(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	got, err := s.GetAsset(ctx, "sales.orders")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.True(t, got.LastChecked.Equal(clk.Now()))
}

func TestGetAsset_RoundTripsStructuredColumns(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	rec := testAsset("sales.orders", clk.Now())
	rec.Dependencies = []string{"sales.raw"}
	rec.Config = map[string]any{"batch": map[string]any{"size": 9007199254740993}}
	rec.SystemInfo = map[string]any{"os": "linux"}
	_, err := s.UpsertAsset(ctx, rec)
	require.NoError(t, err)

	got, err := s.GetAsset(ctx, "sales.orders")
	require.NoError(t, err)

	assert.Equal(t, model.AssetTypeSource, got.Type)
	assert.Equal(t, "raw", got.Group)
	assert.Equal(t, "ingest", got.Pipeline)
	assert.Equal(t, []string{"data-eng@example.com", "oncall"}, got.Owners)
	assert.Equal(t, map[string]string{"tier": "gold"}, got.Tags)
	assert.Equal(t, []string{"sales.raw"}, got.Dependencies)
	assert.Equal(t, map[string]any{"os": "linux"}, got.SystemInfo)

	// Integers past 2^53 survive as json.Number
	batch := got.Config["batch"].(map[string]any)
	assert.Equal(t, json.Number("9007199254740993"), batch["size"])

	thresholds := got.Metadata["thresholds"].(map[string]any)
	assert.Equal(t, json.Number("0.3"), thresholds["volume"])
	assert.Equal(t, []any{"id", "amount"}, got.Metadata["columns"])
}

func TestGetAsset_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetAsset(context.Background(), "missing.asset")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAsset_EmptyCollectionsStayEmpty(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	_, err := s.UpsertAsset(ctx, model.AssetRecord{
		AssetKey: "bare.asset", Name: "bare", LastUpdated: clk.Now(), LastChecked: clk.Now(),
	})
	require.NoError(t, err)

	got, err := s.GetAsset(ctx, "bare.asset")
	require.NoError(t, err)
	assert.Equal(t, model.AssetTypeUnknown, got.Type)
	assert.Nil(t, got.Owners)
	assert.Nil(t, got.Tags)
	assert.Empty(t, got.Group)
}

func TestAssetLastChecked(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	_, found, err := s.AssetLastChecked(ctx, "a.b")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.UpsertAsset(ctx, testAsset("a.b", clk.Now()))
	require.NoError(t, err)

	got, found, err := s.AssetLastChecked(ctx, "a.b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, got.Equal(clk.Now()))
}

func TestListAssets_FiltersByLastChecked(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	old := clk.Now()
	_, err := s.UpsertAsset(ctx, testAsset("z.old", old))
	require.NoError(t, err)

	fresh := clk.Advance(48 * time.Hour)
	_, err = s.UpsertAsset(ctx, testAsset("a.fresh", fresh))
	require.NoError(t, err)

	all, err := s.ListAssets(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a.fresh", all[0].AssetKey)
	assert.Equal(t, "z.old", all[1].AssetKey)

	cutoff := fresh.Add(-time.Hour)
	live, err := s.ListAssets(ctx, &cutoff)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "a.fresh", live[0].AssetKey)
}

func TestListAssets_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ListAssets(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
