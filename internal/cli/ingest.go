package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgov/internal/ingest"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	AssetKey  string
	Query     string
	QueryFile string
	Table     string
	Truncate  bool
	Mode      string
	DryRun    bool
}

// IngestResult is the output of the ingest command.
type IngestResult struct {
	AssetKey string        `json:"asset_key"`
	Table    string        `json:"table"`
	Window   ingest.Window `json:"window"`
	Rows     int64         `json:"rows"`
	DryRun   bool          `json:"dry_run,omitempty"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Copy a time window of source rows into a staging table",
		Long: `Run a query against the source database for the current load window and
insert the rows into a table of the target database, in one transaction.
The copy is recorded as an execution of --asset, with its row count as the
records_ingested metric and the source columns as the asset schema.

The query receives the window start and end as its two parameters. The
window comes from ingestion.load_mode (full, eom, current_month) and
ingestion.lock_time.

Example:
  assetgov ingest --asset blast.raw --table blast_raw --truncate \
    --query 'SELECT * FROM blasts WHERE blast_at >= $1 AND blast_at < $2'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.AssetKey, "asset", "", "asset key the copy is recorded against (required)")
	cmd.Flags().StringVar(&opts.Query, "query", "", "source query")
	cmd.Flags().StringVar(&opts.QueryFile, "query-file", "", "file holding the source query")
	cmd.Flags().StringVar(&opts.Table, "table", "", "target table (required)")
	cmd.Flags().BoolVar(&opts.Truncate, "truncate", false, "empty the target table first")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "load mode override (full|eom|current_month)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the load window without copying")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("table")
	cmd.MarkFlagsMutuallyExclusive("query", "query-file")

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command) error {
	query := opts.Query
	if opts.QueryFile != "" {
		data, err := os.ReadFile(opts.QueryFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read query file", err)
		}
		query = string(data)
	}
	if strings.TrimSpace(query) == "" && !opts.DryRun {
		return NewExitError(ExitCommandError, "one of --query or --query-file is required")
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	cfg := a.settings.Ingestion
	mode := cfg.LoadMode
	if opts.Mode != "" {
		mode = opts.Mode
	}
	window, err := ingest.LoadWindow(mode, cfg.LockTime, cfg.FullModeStartDate, a.clock.Now())
	if err != nil {
		return a.out.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}
	a.logger.Info("load window", "mode", mode, "window", window.String())

	res := IngestResult{AssetKey: opts.AssetKey, Table: opts.Table, Window: window, DryRun: opts.DryRun}
	if !opts.DryRun {
		source, err := ingest.Open(ctx, cfg.SourceDriver, cfg.SourceDSN)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open source database", err)
		}
		defer source.Close()
		target, err := ingest.Open(ctx, cfg.TargetDriver, cfg.TargetDSN)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open target database", err)
		}
		defer target.Close()

		copier := ingest.NewCopier(source, target,
			ingest.WithTarget(cfg.TargetDriver, cfg.TargetSchema),
			ingest.WithGovernance(a.store, a.registry),
			ingest.WithClock(a.clock),
			ingest.WithLogger(a.logger),
			ingest.WithMetrics(a.metrics))
		res.Rows, err = copier.Copy(ctx, ingest.Request{
			AssetKey: opts.AssetKey,
			Query:    query,
			Table:    opts.Table,
			Truncate: opts.Truncate,
			Window:   window,
		})
		if err != nil {
			return WrapExitError(ExitFailure, "ingest failed", err)
		}
	}

	return a.out.Render(res, func(w io.Writer) error {
		if res.DryRun {
			_, err := fmt.Fprintf(w, "Load window %s (dry run)\n", res.Window)
			return err
		}
		_, err := fmt.Fprintf(w, "Copied %d row(s) into %s for %s, window %s\n", res.Rows, res.Table, res.AssetKey, res.Window)
		return err
	})
}
