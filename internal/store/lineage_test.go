package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgov/internal/model"
)

func TestAddLineageEdge_Deduplicates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.AddLineageEdge(ctx, "a.raw", "a.clean", "")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.AddLineageEdge(ctx, "a.raw", "a.clean", "copy")
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := s.CountLineageEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	edges, err := s.Edges(ctx, "a.raw")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, model.DefaultRelationship, edges[0].RelationshipType)
}

func TestUpstreamDownstream_OneHop(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	for _, key := range []string{"a.raw", "a.clean", "a.report"} {
		_, err := s.UpsertAsset(ctx, testAsset(key, clk.Now()))
		require.NoError(t, err)
	}
	_, err := s.AddLineageEdge(ctx, "a.raw", "a.clean", "")
	require.NoError(t, err)
	_, err = s.AddLineageEdge(ctx, "a.clean", "a.report", "")
	require.NoError(t, err)

	up, err := s.Upstream(ctx, "a.report")
	require.NoError(t, err)
	require.Len(t, up, 1)
	assert.Equal(t, "a.clean", up[0].AssetKey)

	down, err := s.Downstream(ctx, "a.raw")
	require.NoError(t, err)
	require.Len(t, down, 1)
	assert.Equal(t, "a.clean", down[0].AssetKey)

	none, err := s.Upstream(ctx, "a.raw")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpstream_SkipsUnregisteredKeys(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	_, err := s.UpsertAsset(ctx, testAsset("a.clean", clk.Now()))
	require.NoError(t, err)
	_, err = s.AddLineageEdge(ctx, "ghost.raw", "a.clean", "")
	require.NoError(t, err)

	up, err := s.Upstream(ctx, "a.clean")
	require.NoError(t, err)
	assert.Empty(t, up)

	edges, err := s.Edges(ctx, "a.clean")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "ghost.raw", edges[0].Upstream)
}
