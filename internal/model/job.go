package model

import "time"

// JobType classifies scheduled maintenance jobs.
type JobType string

const (
	JobHealthCheck     JobType = "health_check"
	JobAssetDiscovery  JobType = "asset_discovery"
	JobDataQuality     JobType = "data_quality"
	JobMetadataSync    JobType = "metadata_sync"
	JobAlertProcessing JobType = "alert_processing"
)

// JobStatus is the state of one job execution.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a persisted scheduled job definition.
type Job struct {
	ID                 int64          `json:"id"`
	Name               string         `json:"job_name"`
	Type               JobType        `json:"job_type"`
	ScheduleExpression string         `json:"schedule_expression"`
	Enabled            bool           `json:"enabled"`
	LastRun            *time.Time     `json:"last_run,omitempty"`
	NextRun            *time.Time     `json:"next_run,omitempty"`
	Config             map[string]any `json:"config,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// JobExecution is one run of a scheduled job.
type JobExecution struct {
	ID           int64          `json:"id"`
	JobID        int64          `json:"job_id"`
	Status       JobStatus      `json:"status"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// JobState is a job joined with its most recent execution.
type JobState struct {
	Job
	LastExecutionStatus JobStatus  `json:"last_execution_status,omitempty"`
	LastExecutionStart  *time.Time `json:"last_execution_start,omitempty"`
}
