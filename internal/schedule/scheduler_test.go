package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/store"
	"github.com/roach88/assetgov/internal/testutil"
)

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *store.Store, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(time.Time{})
	st, err := store.Open(filepath.Join(t.TempDir(), "sched.db"), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, append([]Option{WithClock(clk)}, opts...)...), st, clk
}

func okJob(calls *int32) JobFunc {
	return func(ctx context.Context, job model.Job) (map[string]any, error) {
		atomic.AddInt32(calls, 1)
		return map[string]any{"job": job.Name}, nil
	}
}

func TestRegisterJob_RejectsMalformedExpression(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	_, err := s.RegisterJob(context.Background(), "bad", model.JobHealthCheck, "@every soon", okJob(new(int32)), nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	jobs, err := s.Jobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRegisterJob_RejectsOverflowingInterval(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	var calls int32
	_, err := s.RegisterJob(ctx, "forever", model.JobHealthCheck, "@every 400000 days", okJob(&calls), nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	for range 3 {
		_, err := s.RunDue(ctx)
		require.NoError(t, err)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRegisterJob_FirstRunOneIntervalOut(t *testing.T) {
	s, _, clk := newTestScheduler(t)

	job, err := s.RegisterJob(context.Background(), "health_check_job", model.JobHealthCheck,
		"@every 15 minutes", okJob(new(int32)), map[string]any{"limit": 10})
	require.NoError(t, err)
	require.NotNil(t, job.NextRun)
	assert.True(t, job.NextRun.Equal(clk.Now().Add(15*time.Minute)))
	assert.True(t, job.Enabled)
}

func TestRunDue_RunsOnlyDueJobs(t *testing.T) {
	s, _, clk := newTestScheduler(t)
	ctx := context.Background()

	var fast, slow int32
	_, err := s.RegisterJob(ctx, "fast", model.JobAlertProcessing, "@every 5 minutes", okJob(&fast), nil)
	require.NoError(t, err)
	_, err = s.RegisterJob(ctx, "slow", model.JobAssetDiscovery, "@every 1 hour", okJob(&slow), nil)
	require.NoError(t, err)

	n, err := s.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(5 * time.Minute)
	n, err = s.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), fast)
	assert.Zero(t, slow)

	st, err := s.JobStatus(ctx, "fast")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, st.LastExecutionStatus)
	require.NotNil(t, st.NextRun)
	assert.True(t, st.NextRun.Equal(clk.Now().Add(5*time.Minute)))
	require.NotNil(t, st.LastRun)
	assert.True(t, st.LastRun.Equal(clk.Now()))
}

func TestRunDue_FailureRecordedAndStillAdvanced(t *testing.T) {
	s, st, clk := newTestScheduler(t)
	ctx := context.Background()

	job, err := s.RegisterJob(ctx, "flaky", model.JobHealthCheck, "@every 1 hour",
		func(context.Context, model.Job) (map[string]any, error) {
			return nil, errors.New("source unreachable")
		}, nil)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	n, err := s.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	execs, err := st.JobExecutions(ctx, job.ID, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.JobFailed, execs[0].Status)
	assert.Equal(t, "source unreachable", execs[0].ErrorMessage)

	state, err := s.JobStatus(ctx, "flaky")
	require.NoError(t, err)
	assert.True(t, state.NextRun.After(clk.Now()), "next_run advanced despite failure")

	n, err = s.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no retry before the next interval")
}

func TestRunDue_PanicBecomesFailure(t *testing.T) {
	s, st, clk := newTestScheduler(t)
	ctx := context.Background()

	job, err := s.RegisterJob(ctx, "panicky", model.JobDataQuality, "@every 1 minute",
		func(context.Context, model.Job) (map[string]any, error) { panic("boom") }, nil)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = s.RunDue(ctx)
	require.NoError(t, err)

	execs, err := st.JobExecutions(ctx, job.ID, 1)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.JobFailed, execs[0].Status)
	assert.Contains(t, execs[0].ErrorMessage, "boom")
}

func TestRunDue_UnboundJobFails(t *testing.T) {
	s, st, clk := newTestScheduler(t)
	ctx := context.Background()

	// A job row left from an earlier process, with no function bound here.
	next := clk.Now()
	job, err := st.UpsertJob(ctx, model.Job{
		Name: "orphan", Type: model.JobMetadataSync, ScheduleExpression: "@every 1 hour",
		Enabled: true, NextRun: &next,
	})
	require.NoError(t, err)

	n, err := s.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	execs, err := st.JobExecutions(ctx, job.ID, 1)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ErrJobNotFound.Error(), execs[0].ErrorMessage)
}

func TestSetEnabled_SkipsDisabledJobs(t *testing.T) {
	s, _, clk := newTestScheduler(t)
	ctx := context.Background()

	var calls int32
	_, err := s.RegisterJob(ctx, "j", model.JobHealthCheck, "@every 1 minute", okJob(&calls), nil)
	require.NoError(t, err)
	require.NoError(t, s.SetEnabled(ctx, "j", false))

	clk.Advance(time.Hour)
	n, err := s.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, calls)
}

func TestStartStop(t *testing.T) {
	s, _, clk := newTestScheduler(t, WithPollInterval(10*time.Millisecond), WithShutdownTimeout(time.Second))
	ctx := context.Background()

	var calls int32
	_, err := s.RegisterJob(ctx, "tick", model.JobHealthCheck, "@every 1 minute", okJob(&calls), nil)
	require.NoError(t, err)
	clk.Advance(time.Minute)

	s.Start(ctx)
	s.Start(ctx) // second start is a no-op

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 },
		2*time.Second, 10*time.Millisecond)

	assert.True(t, s.Stop())
	assert.True(t, s.Stop(), "stopping twice is safe")
}

func TestStart_DisabledIsNoop(t *testing.T) {
	s, _, _ := newTestScheduler(t, WithEnabled(false))

	s.Start(context.Background())
	assert.True(t, s.Stop())
}
