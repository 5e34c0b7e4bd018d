// Package schedule runs named maintenance jobs on fixed intervals.
//
// Job definitions and their execution history live in the store so that
// next_run survives restarts. The loop is a single goroutine that polls for
// due jobs and runs them one at a time; a failed job is recorded and still
// advanced to its next interval, without retry or backoff.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/assetgov/internal/clock"
	"github.com/roach88/assetgov/internal/metrics"
	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/runid"
	"github.com/roach88/assetgov/internal/store"
)

// DefaultPollInterval is how often the loop looks for due jobs.
const DefaultPollInterval = 60 * time.Second

// DefaultShutdownTimeout bounds how long Stop waits for the loop.
const DefaultShutdownTimeout = 10 * time.Second

// ErrJobNotFound is recorded for due jobs with no registered function.
var ErrJobNotFound = errors.New("job function not found")

// JobFunc performs one run of a job. The returned map is stored as the
// execution result.
type JobFunc func(ctx context.Context, job model.Job) (map[string]any, error)

// Scheduler polls the store for due jobs and executes them.
type Scheduler struct {
	store           *store.Store
	clock           clock.Clock
	ids             runid.Generator
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	enabled         bool
	logger          *slog.Logger
	metrics         *metrics.Recorder

	mu     sync.Mutex
	funcs  map[string]JobFunc
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for next_run and execution stamps.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = clock.OrSystem(c) }
}

// WithRunIDs sets the generator for per-run correlation ids.
func WithRunIDs(g runid.Generator) Option {
	return func(s *Scheduler) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithPollInterval sets the tick period of the background loop. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the loop to exit.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithEnabled turns the background loop on or off. RunDue works either way.
func WithEnabled(enabled bool) Option {
	return func(s *Scheduler) { s.enabled = enabled }
}

// WithLogger sets the logger. A nil logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records job runs and durations on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a Scheduler backed by st.
func New(st *store.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:           st,
		clock:           clock.System{},
		ids:             runid.UUIDv7Generator{},
		pollInterval:    DefaultPollInterval,
		shutdownTimeout: DefaultShutdownTimeout,
		enabled:         true,
		logger:          slog.Default(),
		funcs:           make(map[string]JobFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterJob validates expr, stores the job and binds fn to its name.
// A new job first runs one interval from now; re-registering an existing
// job updates its type, expression and config but keeps its next_run.
func (s *Scheduler) RegisterJob(ctx context.Context, name string, jobType model.JobType, expr string, fn JobFunc, config map[string]any) (model.Job, error) {
	sched, err := Parse(expr)
	if err != nil {
		return model.Job{}, fmt.Errorf("register job %s: %w", name, err)
	}
	if fn == nil {
		return model.Job{}, fmt.Errorf("register job %s: nil function", name)
	}

	now := s.clock.Now()
	next := sched.Next(now)
	job, err := s.store.UpsertJob(ctx, model.Job{
		Name:               name,
		Type:               jobType,
		ScheduleExpression: expr,
		Enabled:            true,
		NextRun:            &next,
		Config:             config,
		CreatedAt:          now,
	})
	if err != nil {
		return model.Job{}, fmt.Errorf("register job %s: %w", name, err)
	}

	s.mu.Lock()
	s.funcs[name] = fn
	s.mu.Unlock()

	s.logger.Info("job registered", "job", name, "schedule", expr, "next_run", job.NextRun)
	return job, nil
}

// RunDue executes every enabled job whose next_run has passed, one at a
// time, and returns how many ran. Job failures are recorded, not returned.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.store.DueJobs(ctx, now)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, job := range due {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		if err := s.runJob(ctx, job, now); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

// runJob records one execution. Only storage errors are returned.
func (s *Scheduler) runJob(ctx context.Context, job model.Job, tick time.Time) error {
	runID := s.ids.Generate()
	logger := s.logger.With("job", job.Name, "run_id", runID)

	start := s.clock.Now()
	execID, err := s.store.StartJobExecution(ctx, job.ID, start)
	if err != nil {
		return fmt.Errorf("run job %s: %w", job.Name, err)
	}

	s.mu.Lock()
	fn := s.funcs[job.Name]
	s.mu.Unlock()

	var result map[string]any
	var runErr error
	if fn == nil {
		runErr = ErrJobNotFound
	} else {
		logger.Info("job started")
		result, runErr = call(ctx, fn, job)
	}

	// Outcome bookkeeping survives cancellation of the run itself.
	bk := context.WithoutCancel(ctx)

	end := s.clock.Now()
	status := model.JobCompleted
	errMsg := ""
	if runErr != nil {
		status = model.JobFailed
		errMsg = runErr.Error()
		logger.Error("job failed", "error", runErr)
	} else {
		logger.Info("job completed", "duration", end.Sub(start).String())
	}
	if err := s.store.FinishJobExecution(bk, execID, status, end, result, errMsg); err != nil {
		return fmt.Errorf("run job %s: %w", job.Name, err)
	}
	s.metrics.JobRun(job.Name, string(status), end.Sub(start))

	next := s.nextRun(job, end, logger)
	if err := s.store.AdvanceJob(bk, job.ID, tick, next); err != nil {
		return fmt.Errorf("run job %s: %w", job.Name, err)
	}
	return nil
}

// nextRun computes the following run. Stored expressions were validated at
// registration; one that no longer parses is disabled by pushing it a day out.
func (s *Scheduler) nextRun(job model.Job, from time.Time, logger *slog.Logger) time.Time {
	sched, err := Parse(job.ScheduleExpression)
	if err != nil {
		logger.Error("stored schedule invalid", "schedule", job.ScheduleExpression, "error", err)
		return from.Add(24 * time.Hour)
	}
	return sched.Next(from)
}

// call runs fn, converting a panic into an error so one bad job cannot
// stop the loop.
func call(ctx context.Context, fn JobFunc, job model.Job) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, job)
}

// Start launches the polling loop on its own goroutine. It is a no-op when
// the scheduler is disabled or already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		s.logger.Info("job scheduler disabled")
		return
	}
	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("job scheduler starting", "poll_interval", s.pollInterval.String())
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunDue(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("job scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Stop signals the loop and waits for it up to the shutdown timeout.
// It reports false if the loop did not exit in time.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return true
	}
	cancel()

	select {
	case <-done:
		return true
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn("job scheduler did not stop in time", "timeout", s.shutdownTimeout.String())
		return false
	}
}

// JobStatus returns a job and its latest execution.
func (s *Scheduler) JobStatus(ctx context.Context, name string) (model.JobState, error) {
	return s.store.Job(ctx, name)
}

// Jobs returns every stored job with its latest execution.
func (s *Scheduler) Jobs(ctx context.Context) ([]model.JobState, error) {
	return s.store.Jobs(ctx)
}

// SetEnabled toggles whether a job is picked up by RunDue.
func (s *Scheduler) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return s.store.SetJobEnabled(ctx, name, enabled)
}
