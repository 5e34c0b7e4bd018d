package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/assetgov/internal/model"
)

// UpsertJob registers a scheduled job by name. A new row is inserted with
// job.NextRun; an existing row takes the new type, expression and config but
// keeps its enabled flag and run times. Returns the stored job.
func (s *Store) UpsertJob(ctx context.Context, job model.Job) (model.Job, error) {
	cfg, err := marshalJSON(job.Config)
	if err != nil {
		return model.Job{}, fmt.Errorf("upsert job %s: %w", job.Name, err)
	}
	created := s.now()
	if !job.CreatedAt.IsZero() {
		created = formatTime(job.CreatedAt)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (job_name, job_type, schedule_expression, enabled, next_run, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_name) DO UPDATE SET
			job_type            = excluded.job_type,
			schedule_expression = excluded.schedule_expression,
			config              = excluded.config
	`, job.Name, string(job.Type), job.ScheduleExpression, job.Enabled,
		formatTimePtr(job.NextRun), cfg, created)
	if err != nil {
		return model.Job{}, fmt.Errorf("upsert job %s: %w", job.Name, err)
	}
	st, err := s.Job(ctx, job.Name)
	if err != nil {
		return model.Job{}, fmt.Errorf("upsert job %s: %w", job.Name, err)
	}
	return st.Job, nil
}

// DueJobs returns enabled jobs whose next_run is at or before now, soonest first.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, job_type, schedule_expression, enabled, last_run, next_run, config, created_at
		FROM scheduled_jobs
		WHERE enabled = 1 AND next_run IS NOT NULL AND next_run <= ?
		ORDER BY next_run ASC, id ASC
	`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("due jobs: %w", err)
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("due jobs: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("due jobs: %w", err)
	}
	return jobs, nil
}

// AdvanceJob records a run and sets the next scheduled time.
func (s *Store) AdvanceJob(ctx context.Context, id int64, lastRun, nextRun time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET last_run = ?, next_run = ? WHERE id = ?`,
		formatTime(lastRun), formatTime(nextRun), id)
	if err != nil {
		return fmt.Errorf("advance job %d: %w", id, err)
	}
	return nil
}

// SetJobEnabled toggles a job by name. Returns ErrNotFound for unknown names.
func (s *Store) SetJobEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET enabled = ? WHERE job_name = ?`, enabled, name)
	if err != nil {
		return fmt.Errorf("set job enabled %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set job enabled %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("set job enabled %s: %w", name, ErrNotFound)
	}
	return nil
}

// StartJobExecution appends a running execution row for a job.
func (s *Store) StartJobExecution(ctx context.Context, jobID int64, start time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO job_executions (job_id, status, start_time) VALUES (?, ?, ?)
	`, jobID, string(model.JobRunning), formatTime(start))
	if err != nil {
		return 0, fmt.Errorf("start job execution %d: %w", jobID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("start job execution %d: %w", jobID, err)
	}
	return id, nil
}

// FinishJobExecution closes an execution row with its outcome.
func (s *Store) FinishJobExecution(ctx context.Context, execID int64, status model.JobStatus, end time.Time, result map[string]any, errMsg string) error {
	res, err := marshalJSON(result)
	if err != nil {
		return fmt.Errorf("finish job execution %d: %w", execID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE job_executions SET status = ?, end_time = ?, result = ?, error_message = ?
		WHERE id = ?
	`, string(status), formatTime(end), res, nullString(errMsg), execID)
	if err != nil {
		return fmt.Errorf("finish job execution %d: %w", execID, err)
	}
	return nil
}

const jobStateSelect = `
	SELECT j.id, j.job_name, j.job_type, j.schedule_expression, j.enabled,
	       j.last_run, j.next_run, j.config, j.created_at,
	       e.status, e.start_time
	FROM scheduled_jobs j
	LEFT JOIN job_executions e ON e.id = (
		SELECT id FROM job_executions
		WHERE job_id = j.id
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	)`

// Job returns a job with its latest execution, or ErrNotFound.
func (s *Store) Job(ctx context.Context, name string) (model.JobState, error) {
	st, err := scanJobState(s.db.QueryRowContext(ctx, jobStateSelect+` WHERE j.job_name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return model.JobState{}, fmt.Errorf("job %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return model.JobState{}, fmt.Errorf("job %s: %w", name, err)
	}
	return st, nil
}

// Jobs returns every job with its latest execution, ordered by name.
func (s *Store) Jobs(ctx context.Context) ([]model.JobState, error) {
	rows, err := s.db.QueryContext(ctx, jobStateSelect+` ORDER BY j.job_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("jobs: %w", err)
	}
	defer rows.Close()

	states := []model.JobState{}
	for rows.Next() {
		st, err := scanJobState(rows)
		if err != nil {
			return nil, fmt.Errorf("jobs: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: %w", err)
	}
	return states, nil
}

// JobExecutions returns executions of a job, newest first. limit <= 0 means no limit.
func (s *Store) JobExecutions(ctx context.Context, jobID int64, limit int) ([]model.JobExecution, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, status, start_time, end_time, result, error_message
		FROM job_executions
		WHERE job_id = ?
		ORDER BY start_time DESC, id DESC
		LIMIT ?
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("job executions %d: %w", jobID, err)
	}
	defer rows.Close()

	execs := []model.JobExecution{}
	for rows.Next() {
		var (
			e                   model.JobExecution
			status, start       string
			end, result, errMsg sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.JobID, &status, &start, &end, &result, &errMsg); err != nil {
			return nil, fmt.Errorf("scan job execution: %w", err)
		}
		e.Status = model.JobStatus(status)
		e.ErrorMessage = errMsg.String
		if err := unmarshalJSON(result, &e.Result); err != nil {
			return nil, fmt.Errorf("job execution %d result: %w", e.ID, err)
		}
		if e.StartTime, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("job execution %d: %w", e.ID, err)
		}
		if e.EndTime, err = parseNullTime(end); err != nil {
			return nil, fmt.Errorf("job execution %d: %w", e.ID, err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job executions: %w", err)
	}
	return execs, nil
}

func scanJob(sc rowScanner) (model.Job, error) {
	st, err := scanJobRow(sc, false)
	return st.Job, err
}

func scanJobState(sc rowScanner) (model.JobState, error) {
	return scanJobRow(sc, true)
}

func scanJobRow(sc rowScanner, withLatest bool) (model.JobState, error) {
	var (
		st                    model.JobState
		jobType, created      string
		lastRun, nextRun, cfg sql.NullString
		execStatus, execStart sql.NullString
	)
	dest := []any{&st.ID, &st.Name, &jobType, &st.ScheduleExpression, &st.Enabled,
		&lastRun, &nextRun, &cfg, &created}
	if withLatest {
		dest = append(dest, &execStatus, &execStart)
	}
	if err := sc.Scan(dest...); err != nil {
		return model.JobState{}, err
	}
	st.Type = model.JobType(jobType)
	if err := unmarshalJSON(cfg, &st.Config); err != nil {
		return model.JobState{}, fmt.Errorf("job %s config: %w", st.Name, err)
	}
	var err error
	if st.CreatedAt, err = parseTime(created); err != nil {
		return model.JobState{}, err
	}
	if st.LastRun, err = parseNullTime(lastRun); err != nil {
		return model.JobState{}, err
	}
	if st.NextRun, err = parseNullTime(nextRun); err != nil {
		return model.JobState{}, err
	}
	st.LastExecutionStatus = model.JobStatus(execStatus.String)
	if st.LastExecutionStart, err = parseNullTime(execStart); err != nil {
		return model.JobState{}, err
	}
	return st, nil
}
