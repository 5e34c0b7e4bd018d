package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgov/internal/health"
	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/store"
	"github.com/roach88/assetgov/internal/testutil"
)

func newTestReporter(t *testing.T) (*Reporter, *store.Store, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(time.Time{})
	st, err := store.Open(filepath.Join(t.TempDir(), "meta.db"), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, WithClock(clk)), st, clk
}

func upsert(t *testing.T, st *store.Store, now time.Time, rec model.AssetRecord) {
	t.Helper()
	rec.LastUpdated = now
	rec.LastChecked = now
	_, err := st.UpsertAsset(context.Background(), rec)
	require.NoError(t, err)
}

// run records a one-minute successful run starting at start.
func run(t *testing.T, st *store.Store, key string, start time.Time, records int64) model.ExecutionRecord {
	t.Helper()
	rec := model.ExecutionRecord{
		AssetKey:         key,
		RunID:            "run",
		Status:           model.ExecutionSuccess,
		RecordsProcessed: model.Int64(records),
		StartedAt:        start,
		CompletedAt:      model.Time(start.Add(time.Minute)),
	}
	_, err := st.SaveExecution(context.Background(), rec)
	require.NoError(t, err)
	return rec
}

func seed(t *testing.T, st *store.Store, clk *testutil.FakeClock) {
	t.Helper()
	ctx := context.Background()
	now := clk.Now()

	upsert(t, st, now, model.AssetRecord{
		AssetKey: "sales.orders", Name: "orders", Type: model.AssetTypeTransform, Group: "sales",
		Owners: []string{"data-eng", "analytics"}, Tags: map[string]string{"tier": "gold"},
		Dependencies: []string{"sales.raw"},
	})
	upsert(t, st, now, model.AssetRecord{
		AssetKey: "blast.raw", Type: model.AssetTypeSource, Owners: []string{"mining"},
	})
	upsert(t, st, now, model.AssetRecord{AssetKey: "new.asset", Type: model.AssetTypeUnknown})

	ev := health.NewEvaluator(st, health.WithClock(clk))

	blast := []model.ExecutionRecord{
		run(t, st, "blast.raw", now.Add(-2*time.Hour), 100),
		run(t, st, "blast.raw", now.Add(-time.Hour), 40),
	}
	_, err := ev.Evaluate(ctx, "blast.raw", []model.ExecutionRecord{blast[1], blast[0]}, nil)
	require.NoError(t, err)
	_, err = st.CreateAlert(ctx, "blast.raw", model.AlertHealthCheckFailed, model.SeverityHigh, "volume", nil)
	require.NoError(t, err)

	sales := []model.ExecutionRecord{
		run(t, st, "sales.orders", now.Add(-49*time.Hour), 100),
		run(t, st, "sales.orders", now.Add(-48*time.Hour), 100),
	}
	_, err = ev.Evaluate(ctx, "sales.orders", []model.ExecutionRecord{sales[1], sales[0]}, nil)
	require.NoError(t, err)
	_, err = st.CreateAlert(ctx, "sales.orders", model.AlertStaleData, model.SeverityMedium, "stale", nil)
	require.NoError(t, err)
	_, err = st.CreateAlert(ctx, "", model.AlertJobFailed, model.SeverityMedium, "job", nil)
	require.NoError(t, err)
}

func TestInventory(t *testing.T) {
	r, st, clk := newTestReporter(t)
	seed(t, st, clk)

	rows := r.Inventory(context.Background())
	require.Len(t, rows, 3)
	assert.Equal(t, "blast.raw", rows[0].AssetKey)
	assert.Equal(t, "sales.orders", rows[2].AssetKey)
	assert.Equal(t, 2, rows[2].OwnerCount)
	assert.Equal(t, 1, rows[2].TagCount)
	assert.Equal(t, 1, rows[2].DependencyCount)
	assert.EqualValues(t, 1, rows[2].Version)
}

func TestHealth(t *testing.T) {
	r, st, clk := newTestReporter(t)
	seed(t, st, clk)

	rows := r.Health(context.Background())
	require.Len(t, rows, 3)
	byKey := map[string]HealthRow{}
	for _, row := range rows {
		byKey[row.AssetKey] = row
	}

	blast := byKey["blast.raw"]
	assert.Equal(t, model.HealthHealthy, blast.Status)
	assert.Equal(t, model.HealthUnhealthy, blast.SummaryStatus)
	assert.Equal(t, 1, blast.FailureCount)
	assert.Equal(t, 1, blast.AlertCount)
	assert.Equal(t, "success", blast.LastExecutionStatus)
	require.NotNil(t, blast.LastExecutionTime)
	assert.True(t, blast.LastExecutionTime.Equal(clk.Now().Add(-59*time.Minute)))

	sales := byKey["sales.orders"]
	assert.Equal(t, model.HealthStale, sales.Status)
	assert.Equal(t, model.HealthHealthy, sales.SummaryStatus)
	assert.Equal(t, 1, sales.AlertCount)

	fresh := byKey["new.asset"]
	assert.Equal(t, model.HealthUnknown, fresh.Status)
	assert.Equal(t, model.HealthUnknown, fresh.SummaryStatus)
	assert.Equal(t, "NONE", fresh.LastExecutionStatus)
	assert.Nil(t, fresh.LastExecutionTime)
}

func TestHealth_FailedRunIsUnhealthy(t *testing.T) {
	r, st, clk := newTestReporter(t)
	ctx := context.Background()
	upsert(t, st, clk.Now(), model.AssetRecord{AssetKey: "a.b"})
	_, err := st.SaveExecution(ctx, model.ExecutionRecord{
		AssetKey:  "a.b",
		RunID:     "r1",
		Status:    model.ExecutionFailed,
		StartedAt: clk.Now(),
		Metadata:  map[string]any{"error": "boom"},
	})
	require.NoError(t, err)

	rows := r.Health(ctx)
	require.Len(t, rows, 1)
	assert.Equal(t, model.HealthUnhealthy, rows[0].Status)
	assert.Equal(t, "failed", rows[0].LastExecutionStatus)
}

func TestOwnership(t *testing.T) {
	r, st, clk := newTestReporter(t)
	seed(t, st, clk)

	rows := r.Ownership(context.Background())
	require.Len(t, rows, 3)
	assert.Equal(t, OwnershipRow{Owner: "mining", AssetKey: "blast.raw", Type: model.AssetTypeSource}, rows[0])
	assert.Equal(t, "data-eng", rows[1].Owner)
	assert.Equal(t, "analytics", rows[2].Owner)
}

func TestAlerts(t *testing.T) {
	r, st, clk := newTestReporter(t)
	seed(t, st, clk)

	assert.Equal(t, AlertCounts{Total: 3, High: 1, Medium: 2}, r.Alerts(context.Background()))
}

func TestViewsDegradeWhenStoreFails(t *testing.T) {
	r, st, clk := newTestReporter(t)
	seed(t, st, clk)
	require.NoError(t, st.Close())

	ctx := context.Background()
	inv := r.Inventory(ctx)
	assert.NotNil(t, inv)
	assert.Empty(t, inv)
	assert.Empty(t, r.Health(ctx))
	assert.Empty(t, r.Ownership(ctx))
	assert.Equal(t, AlertCounts{}, r.Alerts(ctx))
}
