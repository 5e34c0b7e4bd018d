package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/assetgov/internal/api"
	"github.com/roach88/assetgov/internal/discovery"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	NoWatch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job scheduler, definition watcher and HTTP API",
		Long: `Run the governance service until interrupted:

  - the job scheduler with the built-in health check, discovery and
    alert processing jobs
  - a watcher that rediscovers assets when definition files change
  - the read-only HTTP API and Prometheus /metrics endpoint

Example:
  assetgov serve --db ./metadata.db --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (default from http.addr)")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not watch the definitions directory")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	addr := a.settings.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	dir := a.settings.Governance.DefinitionsDir
	watch := !opts.NoWatch && isDir(dir)
	if !opts.NoWatch && !watch {
		a.logger.Warn("definitions directory not found, watcher disabled", "dir", dir)
	}

	sched := a.scheduler()
	registered := a.runner.RegisterDefaults(ctx, sched, a.settings.JobScheduler)
	a.logger.Info("built-in jobs registered", "count", registered)

	if watch {
		if _, err := a.runner.DiscoverNow(ctx, dir); err != nil && !errors.Is(err, discovery.ErrNoDefinitions) {
			a.logger.Warn("initial discovery failed", "dir", dir, "error", err)
		}
	}

	server := api.New(a.store, a.registry, a.reporter, a.metrics, a.logger)
	g, gctx := errgroup.WithContext(ctx)

	sched.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		if !sched.Stop() {
			return errors.New("job scheduler did not stop in time")
		}
		return nil
	})

	if watch {
		g.Go(func() error {
			return a.discoverer.Watch(gctx, dir, func(ctx context.Context) {
				if _, err := a.runner.DiscoverNow(ctx, dir); err != nil {
					a.logger.Warn("rediscovery failed", "dir", dir, "error", err)
				}
			})
		})
	}

	g.Go(func() error {
		return server.ListenAndServe(gctx, addr, a.settings.JobScheduler.ShutdownTimeout)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", addr)
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "service error", err)
	}
	a.logger.Info("service stopped gracefully")
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
