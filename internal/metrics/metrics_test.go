package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.Registration("written")
	r.Registration("written")
	r.Registration("debounced")
	r.Execution("success")
	r.HealthEvaluation("UNHEALTHY")
	r.AlertCreated("HIGH")
	r.JobRun("health_check", "completed", 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.registrations.WithLabelValues("written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.registrations.WithLabelValues("debounced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.executions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.healthEvaluations.WithLabelValues("UNHEALTHY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alertsCreated.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("health_check", "completed")))
}

func TestRecorder_GathersNamespacedFamilies(t *testing.T) {
	r := New()
	r.AlertCreated("LOW")
	r.JobRun("discovery", "failed", time.Second)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["assetgov_alerts_created_total"])
	assert.True(t, names["assetgov_job_runs_total"])
	assert.True(t, names["assetgov_job_duration_seconds"])
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.Registration("written")
		r.Execution("failed")
		r.HealthEvaluation("HEALTHY")
		r.AlertCreated("HIGH")
		r.JobRun("x", "completed", time.Second)
	})
	_, err := r.Gatherer().Gather()
	assert.NoError(t, err)
}
