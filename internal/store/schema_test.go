package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgov/internal/model"
)

func TestReplaceAssetSchema_ReplacesAndKeepsOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAssetSchema(ctx, "a.b", []model.SchemaColumn{
		{Name: "id", DataType: "INTEGER"},
		{Name: "legacy", DataType: "TEXT", IsNullable: true},
	}))
	require.NoError(t, s.ReplaceAssetSchema(ctx, "a.b", []model.SchemaColumn{
		{Name: "zeta", DataType: "TEXT", IsNullable: true},
		{Name: "id", DataType: "BIGINT"},
	}))

	cols, err := s.AssetSchema(ctx, "a.b")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "zeta", cols[0].Name)
	assert.True(t, cols[0].IsNullable)
	assert.Equal(t, "id", cols[1].Name)
	assert.Equal(t, "BIGINT", cols[1].DataType)
	assert.False(t, cols[1].LastSeen.IsZero())
}

func TestReplaceAssetSchema_DuplicateColumnRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAssetSchema(ctx, "a.b", []model.SchemaColumn{{Name: "id", DataType: "INTEGER"}}))

	err := s.ReplaceAssetSchema(ctx, "a.b", []model.SchemaColumn{
		{Name: "dup", DataType: "TEXT"},
		{Name: "dup", DataType: "TEXT"},
	})
	require.Error(t, err)

	cols, err := s.AssetSchema(ctx, "a.b")
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "id", cols[0].Name)
}

func TestMetrics_FilterAndOrder(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	_, err := s.RecordMetric(ctx, "a.b", "row_count", 10, time.Time{})
	require.NoError(t, err)
	_, err = s.RecordMetric(ctx, "a.b", "null_ratio", 0.1, clk.Advance(time.Minute))
	require.NoError(t, err)
	_, err = s.RecordMetric(ctx, "a.b", "row_count", 12, clk.Advance(time.Minute))
	require.NoError(t, err)

	rows, err := s.Metrics(ctx, "a.b", "row_count", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 12.0, rows[0].Value)
	assert.Equal(t, 10.0, rows[1].Value)

	all, err := s.Metrics(ctx, "a.b", "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "row_count", all[0].Name)
	assert.Equal(t, "null_ratio", all[1].Name)
}
