package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgov/internal/clock"
	"github.com/roach88/assetgov/internal/config"
	"github.com/roach88/assetgov/internal/discovery"
	"github.com/roach88/assetgov/internal/health"
	"github.com/roach88/assetgov/internal/jobs"
	"github.com/roach88/assetgov/internal/metrics"
	"github.com/roach88/assetgov/internal/registry"
	"github.com/roach88/assetgov/internal/report"
	"github.com/roach88/assetgov/internal/schedule"
	"github.com/roach88/assetgov/internal/store"
	"github.com/roach88/assetgov/internal/sysinfo"
)

// app is the set of services a command works with, built from the merged
// configuration and the global flags.
type app struct {
	settings   config.Settings
	dbPath     string
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Recorder
	store      *store.Store
	registry   *registry.Registry
	evaluator  *health.Evaluator
	discoverer *discovery.Discoverer
	runner     *jobs.Runner
	reporter   *report.Reporter
	out        *OutputFormatter
}

// loadSettings reads the config file named by --config (or the default
// path) and applies the --db override.
func loadSettings(opts *RootOptions) (config.Settings, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Settings{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Set("database.metadata_db", opts.Database)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return config.Settings{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return settings, nil
}

// openApp loads settings, opens the governance database and wires every
// service on top of it. Callers must Close the result.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	settings, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	clk := clock.OrSystem(opts.Clock)

	dbPath := settings.Database.MetadataDB
	logger.Debug("opening database", "path", dbPath)
	st, err := store.Open(dbPath, store.WithClock(clk))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	rec := metrics.New()
	reg := registry.New(st,
		registry.WithClock(clk),
		registry.WithUpdateInterval(settings.AssetManagement.UpdateIntervalDuration()),
		registry.WithSystemInfo(sysinfo.Collect(sysinfo.Options{
			Environment: settings.Environment,
			ProjectName: settings.ProjectName,
		})),
		registry.WithLogger(logger),
		registry.WithMetrics(rec))
	ev := health.NewEvaluator(st,
		health.WithClock(clk),
		health.WithThresholds(health.Thresholds{
			Volume: settings.Health.VolumeThreshold,
			Time:   settings.Health.TimeThreshold,
		}),
		health.WithLogger(logger),
		health.WithMetrics(rec))
	disc := discovery.New(reg, discovery.WithLogger(logger))
	runner := jobs.New(st, reg, ev, disc,
		jobs.WithClock(clk),
		jobs.WithLogger(logger),
		jobs.WithMetrics(rec),
		jobs.WithHistoryLimit(settings.Health.HistoryLimit),
		jobs.WithFreshness(settings.Health.FreshnessWindow()),
		jobs.WithDefinitions(settings.Governance.DefinitionsDir, settings.Governance.AutoDiscoveryIntervalDuration()))
	rep := report.New(st,
		report.WithClock(clk),
		report.WithLogger(logger),
		report.WithFreshness(settings.Health.FreshnessWindow()))

	return &app{
		settings:   settings,
		dbPath:     dbPath,
		clock:      clk,
		logger:     logger,
		metrics:    rec,
		store:      st,
		registry:   reg,
		evaluator:  ev,
		discoverer: disc,
		runner:     runner,
		reporter:   rep,
		out:        newFormatter(opts, cmd),
	}, nil
}

// scheduler builds the job scheduler from the job_scheduler settings.
func (a *app) scheduler() *schedule.Scheduler {
	cfg := a.settings.JobScheduler
	return schedule.New(a.store,
		schedule.WithClock(a.clock),
		schedule.WithPollInterval(cfg.PollInterval),
		schedule.WithShutdownTimeout(cfg.ShutdownTimeout),
		schedule.WithEnabled(cfg.Enabled),
		schedule.WithLogger(a.logger),
		schedule.WithMetrics(a.metrics))
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
