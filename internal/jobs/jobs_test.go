package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgov/internal/config"
	"github.com/roach88/assetgov/internal/discovery"
	"github.com/roach88/assetgov/internal/health"
	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/registry"
	"github.com/roach88/assetgov/internal/schedule"
	"github.com/roach88/assetgov/internal/store"
	"github.com/roach88/assetgov/internal/sysinfo"
	"github.com/roach88/assetgov/internal/testutil"
)

type fixture struct {
	runner *Runner
	store  *store.Store
	reg    *registry.Registry
	clock  *testutil.FakeClock
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	clk := testutil.NewFakeClock(time.Time{})
	st, err := store.Open(filepath.Join(t.TempDir(), "meta.db"), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st,
		registry.WithClock(clk),
		registry.WithSystemInfo(sysinfo.Snapshot{Environment: "test", ProjectName: "mining"}))
	ev := health.NewEvaluator(st, health.WithClock(clk))
	disc := discovery.New(reg)
	r := New(st, reg, ev, disc, append([]Option{WithClock(clk)}, opts...)...)
	return fixture{runner: r, store: st, reg: reg, clock: clk}
}

// seedRuns records one successful one-minute run per count, an hour apart,
// the last one starting at lastStart.
func (f fixture) seedRuns(t *testing.T, key string, lastStart time.Time, counts ...int64) {
	t.Helper()
	ctx := context.Background()
	for i, n := range counts {
		start := lastStart.Add(-time.Duration(len(counts)-1-i) * time.Hour)
		_, err := f.store.SaveExecution(ctx, model.ExecutionRecord{
			AssetKey:         key,
			RunID:            fmt.Sprintf("run-%d", i),
			Status:           model.ExecutionSuccess,
			RecordsProcessed: model.Int64(n),
			StartedAt:        start,
			CompletedAt:      model.Time(start.Add(time.Minute)),
		})
		require.NoError(t, err)
	}
}

func (f fixture) register(t *testing.T, key string) {
	t.Helper()
	_, err := f.reg.RegisterOrUpdate(context.Background(), model.AssetSpec{AssetKey: key})
	require.NoError(t, err)
}

func TestHealthCheck_VolumeDropRaisesHighAlert(t *testing.T) {
	f := newFixture(t, WithFreshness(25*time.Hour))
	ctx := context.Background()

	f.register(t, "blast.raw")
	f.seedRuns(t, "blast.raw", f.clock.Now().Add(-time.Hour), 100, 100, 100, 100, 40)

	result, err := f.runner.HealthCheck(ctx, model.Job{})
	require.NoError(t, err)
	assert.Equal(t, 1, result["assets_checked"])
	assert.Equal(t, 1, result["unhealthy"])
	assert.Equal(t, 1, result["alerts_created"])

	sum, err := f.store.HealthSummary(ctx, "blast.raw")
	require.NoError(t, err)
	assert.Equal(t, model.HealthUnhealthy, sum.OverallStatus)
	assert.Equal(t, 1, sum.FailureCount)

	alerts, err := f.store.ActiveAlerts(ctx, "blast.raw")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertHealthCheckFailed, alerts[0].Type)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "Data volume changed by 60.00%, exceeds threshold of 20.00%", alerts[0].Message)
}

func TestHealthCheck_StaleAssetMarkedAndAlerted(t *testing.T) {
	f := newFixture(t, WithFreshness(25*time.Hour))
	ctx := context.Background()

	f.register(t, "sales.orders")
	f.seedRuns(t, "sales.orders", f.clock.Now().Add(-48*time.Hour), 100, 100)

	result, err := f.runner.HealthCheck(ctx, model.Job{})
	require.NoError(t, err)
	assert.Equal(t, 1, result["stale"])
	assert.Equal(t, 0, result["unhealthy"])

	sum, err := f.store.HealthSummary(ctx, "sales.orders")
	require.NoError(t, err)
	assert.Equal(t, model.HealthStale, sum.OverallStatus)
	assert.Zero(t, sum.FailureCount)
	require.NotNil(t, sum.LastHealthy)

	alerts, err := f.store.ActiveAlerts(ctx, "sales.orders")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertStaleData, alerts[0].Type)
	assert.Equal(t, model.SeverityMedium, alerts[0].Severity)
}

func TestHealthCheck_FreshnessDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "sales.orders")
	f.seedRuns(t, "sales.orders", f.clock.Now().Add(-48*time.Hour), 100, 100)

	out, err := f.runner.CheckAsset(ctx, model.AssetRecord{AssetKey: "sales.orders"})
	require.NoError(t, err)
	assert.Equal(t, model.HealthHealthy, out.Status())
	assert.Nil(t, out.Freshness)
	assert.Zero(t, out.Alerts)
}

func TestHealthCheck_NoHistoryIsUnknownWithoutAlerts(t *testing.T) {
	f := newFixture(t, WithFreshness(time.Hour))
	ctx := context.Background()

	f.register(t, "new.asset")

	result, err := f.runner.HealthCheck(ctx, model.Job{})
	require.NoError(t, err)
	assert.Equal(t, 1, result["unknown"])
	assert.Equal(t, 0, result["alerts_created"])

	alerts, err := f.store.ActiveAlerts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestHealthCheck_SkipsAssetsPastLiveness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "old.asset")
	f.clock.Advance(9 * registry.DefaultUpdateInterval)
	f.register(t, "new.asset")

	result, err := f.runner.HealthCheck(ctx, model.Job{})
	require.NoError(t, err)
	assert.Equal(t, 1, result["assets_checked"])
}

func TestProcessAlerts_CountsActiveBySeverity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateAlert(ctx, "a.b", model.AlertHealthCheckFailed, model.SeverityHigh, "x", nil)
	require.NoError(t, err)
	_, err = f.store.CreateAlert(ctx, "a.b", model.AlertStaleData, model.SeverityMedium, "y", nil)
	require.NoError(t, err)
	id, err := f.store.CreateAlert(ctx, "c.d", model.AlertHealthCheckFailed, model.SeverityHigh, "z", nil)
	require.NoError(t, err)
	_, err = f.store.ResolveAlert(ctx, id)
	require.NoError(t, err)

	result, err := f.runner.ProcessAlerts(ctx, model.Job{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"active": 2, "high": 1, "medium": 1, "low": 0}, result)
}

func TestDiscover_RegistersAndRespectsInterval(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets.yaml"), []byte(`
assets:
  - key: blast.raw
  - key: blast.summary
    dependencies: [blast.raw]
`), 0o644))

	f := newFixture(t, WithDefinitions(dir, time.Hour))
	ctx := context.Background()

	result, err := f.runner.Discover(ctx, model.Job{})
	require.NoError(t, err)
	assert.Equal(t, 2, result["registered"])
	assert.Equal(t, 1, result["lineage_edges"])

	result, err = f.runner.Discover(ctx, model.Job{})
	require.NoError(t, err)
	assert.Equal(t, true, result["skipped"])

	f.clock.Advance(time.Hour)
	result, err = f.runner.Discover(ctx, model.Job{})
	require.NoError(t, err)
	assert.NotContains(t, result, "skipped")
	assert.Equal(t, 0, result["lineage_edges"])
}

func TestDiscover_JobConfigOverridesDirectory(t *testing.T) {
	empty := t.TempDir()
	f := newFixture(t, WithDefinitions(filepath.Join(t.TempDir(), "unused"), 0))

	result, err := f.runner.Discover(context.Background(), model.Job{
		Config: map[string]any{"definitions_dir": empty},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"definitions": 0}, result)
}

func TestRegisterDefaults_SkipsBadExpressions(t *testing.T) {
	f := newFixture(t, WithFreshness(25*time.Hour))
	ctx := context.Background()
	sched := schedule.New(f.store, schedule.WithClock(f.clock))

	n := f.runner.RegisterDefaults(ctx, sched, config.JobScheduler{
		HealthCheckJob:     "@every 15 minutes",
		DiscoveryJob:       "whenever",
		AlertProcessingJob: "@every 5 minutes",
	})
	assert.Equal(t, 2, n)

	jobs, err := sched.Jobs(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	assert.ElementsMatch(t, []string{HealthCheckJobName, AlertProcessingJobName}, names)

	f.register(t, "blast.raw")
	f.seedRuns(t, "blast.raw", f.clock.Now().Add(-time.Hour), 100, 100, 100, 100, 40)

	f.clock.Advance(15 * time.Minute)
	ran, err := sched.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ran)

	state, err := sched.JobStatus(ctx, HealthCheckJobName)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, state.LastExecutionStatus)

	alerts, err := f.store.ActiveAlerts(ctx, "blast.raw")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}
