package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgov/internal/discovery"
)

// DiscoverOptions holds flags for the discover command.
type DiscoverOptions struct {
	*RootOptions
	Watch bool
}

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiscoverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "discover [definitions-dir]",
		Short: "Register assets from definition files",
		Long: `Load asset definitions (*.yaml, *.yml, *.cue) from a directory, register
each valid one and record lineage edges from its dependencies. The
directory defaults to governance.definitions_dir.

With --watch, discovery runs again whenever a definition file changes,
until interrupted.

Example:
  assetgov discover ./assets
  assetgov discover --watch`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "rescan when definition files change")
	return cmd
}

func runDiscover(opts *DiscoverOptions, args []string, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.settings.Governance.DefinitionsDir
	if len(args) == 1 {
		dir = args[0]
	}

	res, err := a.runner.DiscoverNow(cmd.Context(), dir)
	if errors.Is(err, discovery.ErrNoDefinitions) && !opts.Watch {
		return a.out.Fail(ExitFailure, ErrCodeDefinitions, err.Error(), map[string]string{"dir": dir})
	}
	if err != nil && !errors.Is(err, discovery.ErrNoDefinitions) {
		return a.out.Fail(ExitCommandError, ErrCodeDefinitions, err.Error(), map[string]string{"dir": dir})
	}
	if err := a.out.Render(res, func(w io.Writer) error { return writeDiscovery(w, dir, res) }); err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	a.out.VerboseLog("Watching %s for changes. Press Ctrl-C to stop.", dir)
	return a.discoverer.Watch(ctx, dir, func(ctx context.Context) {
		res, err := a.runner.DiscoverNow(ctx, dir)
		if err != nil {
			a.logger.Warn("rediscovery failed", "dir", dir, "error", err)
			return
		}
		_ = a.out.Render(res, func(w io.Writer) error { return writeDiscovery(w, dir, res) })
	})
}

func writeDiscovery(w io.Writer, dir string, res discovery.Result) error {
	_, err := fmt.Fprintf(w, "Discovered %s: %d registered, %d skipped, %d failed, %d invalid, %d new lineage edge(s)\n",
		dir, res.Registered, res.Skipped, res.Failed, res.Invalid, res.LineageEdges)
	return err
}
