package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgov/internal/model"
)

func TestUpsertJob_KeepsRunStateOnReRegister(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	next := clk.Now().Add(15 * time.Minute)
	job, err := s.UpsertJob(ctx, model.Job{
		Name: "health", Type: model.JobHealthCheck, ScheduleExpression: "@every 15 minutes",
		Enabled: true, NextRun: &next,
	})
	require.NoError(t, err)
	assert.NotZero(t, job.ID)

	later := next.Add(time.Hour)
	again, err := s.UpsertJob(ctx, model.Job{
		Name: "health", Type: model.JobHealthCheck, ScheduleExpression: "@every 30 minutes",
		Enabled: true, NextRun: &later, Config: map[string]any{"limit": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, "@every 30 minutes", again.ScheduleExpression)
	require.NotNil(t, again.NextRun)
	assert.True(t, again.NextRun.Equal(next))
	assert.NotNil(t, again.Config)
}

func TestDueJobs_RespectsEnabledAndTime(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	now := clk.Now()
	past, future := now.Add(-time.Minute), now.Add(time.Minute)
	for _, j := range []model.Job{
		{Name: "due", Type: model.JobHealthCheck, ScheduleExpression: "@every 1 hour", Enabled: true, NextRun: &past},
		{Name: "later", Type: model.JobHealthCheck, ScheduleExpression: "@every 1 hour", Enabled: true, NextRun: &future},
		{Name: "off", Type: model.JobHealthCheck, ScheduleExpression: "@every 1 hour", Enabled: true, NextRun: &past},
	} {
		_, err := s.UpsertJob(ctx, j)
		require.NoError(t, err)
	}
	require.NoError(t, s.SetJobEnabled(ctx, "off", false))

	due, err := s.DueJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].Name)

	require.NoError(t, s.AdvanceJob(ctx, due[0].ID, now, now.Add(time.Hour)))
	due, err = s.DueJobs(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSetJobEnabled_UnknownJob(t *testing.T) {
	s := createTestStore(t)

	err := s.SetJobEnabled(context.Background(), "nope", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobExecutions_LatestJoinedIntoState(t *testing.T) {
	s, clk := createTestStoreWithClock(t)
	ctx := context.Background()

	next := clk.Now()
	job, err := s.UpsertJob(ctx, model.Job{
		Name: "discovery", Type: model.JobAssetDiscovery, ScheduleExpression: "@every 1 hour",
		Enabled: true, NextRun: &next,
	})
	require.NoError(t, err)

	st, err := s.Job(ctx, "discovery")
	require.NoError(t, err)
	assert.Empty(t, st.LastExecutionStatus)
	assert.Nil(t, st.LastExecutionStart)

	first, err := s.StartJobExecution(ctx, job.ID, clk.Now())
	require.NoError(t, err)
	require.NoError(t, s.FinishJobExecution(ctx, first, model.JobCompleted, clk.Advance(time.Second),
		map[string]any{"registered": 3}, ""))

	second, err := s.StartJobExecution(ctx, job.ID, clk.Advance(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.FinishJobExecution(ctx, second, model.JobFailed, clk.Advance(time.Second), nil, "boom"))

	st, err = s.Job(ctx, "discovery")
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, st.LastExecutionStatus)

	execs, err := s.JobExecutions(ctx, job.ID, 0)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, "boom", execs[0].ErrorMessage)
	assert.Equal(t, model.JobCompleted, execs[1].Status)
	assert.NotNil(t, execs[1].Result)
	require.NotNil(t, execs[1].EndTime)

	states, err := s.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "discovery", states[0].Name)
}

func TestJob_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Job(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
