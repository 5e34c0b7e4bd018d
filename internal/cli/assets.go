package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/runid"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Name         string
	Type         string
	Group        string
	Pipeline     string
	Owners       []string
	Tags         map[string]string
	Dependencies []string
	Metadata     string // JSON object
}

// RegisterResult is the output of the register command.
type RegisterResult struct {
	AssetKey     string `json:"asset_key"`
	Written      bool   `json:"written"`
	LineageEdges int    `json:"lineage_edges"`
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <asset-key>",
		Short: "Register or update an asset",
		Long: `Register an asset, or update it if it already exists. An update within
asset_management.update_interval of the previous check is skipped.

Each --depends-on key is recorded as an upstream lineage edge, also when
the update itself is skipped.

Example:
  assetgov register sales.orders --type transform --owner data-eng \
    --tag tier=gold --depends-on sales.raw_orders`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (defaults to the key)")
	cmd.Flags().StringVar(&opts.Type, "type", "unknown", "asset type (source|transform|sink|unknown)")
	cmd.Flags().StringVar(&opts.Group, "group", "", "asset group")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline name")
	cmd.Flags().StringSliceVar(&opts.Owners, "owner", nil, "owner (repeatable)")
	cmd.Flags().StringToStringVar(&opts.Tags, "tag", nil, "tag as key=value (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Dependencies, "depends-on", nil, "upstream asset key (repeatable)")
	cmd.Flags().StringVar(&opts.Metadata, "metadata", "", "metadata as a JSON object")

	return cmd
}

func runRegister(opts *RegisterOptions, key string, cmd *cobra.Command) error {
	var metadata map[string]any
	if opts.Metadata != "" {
		if err := json.Unmarshal([]byte(opts.Metadata), &metadata); err != nil {
			return WrapExitError(ExitCommandError, "invalid --metadata JSON", err)
		}
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	spec := model.AssetSpec{
		AssetKey:     key,
		Name:         opts.Name,
		Type:         model.ParseAssetType(opts.Type),
		Group:        opts.Group,
		Pipeline:     opts.Pipeline,
		Owners:       opts.Owners,
		Tags:         opts.Tags,
		Metadata:     metadata,
		Dependencies: opts.Dependencies,
	}
	written, err := a.registry.RegisterOrUpdate(ctx, spec)
	if errors.Is(err, model.ErrInvalidAssetKey) {
		return a.out.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to register asset", err)
	}

	res := RegisterResult{AssetKey: key, Written: written}
	for _, dep := range opts.Dependencies {
		inserted, err := a.registry.AddLineage(ctx, dep, key)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to record lineage", err)
		}
		if inserted {
			res.LineageEdges++
		}
	}

	return a.out.Render(res, func(w io.Writer) error {
		if !res.Written {
			_, err := fmt.Fprintf(w, "Skipped %s (checked within %s)\n", key, a.registry.UpdateInterval())
			return err
		}
		_, err := fmt.Fprintf(w, "Registered %s (%d new lineage edge(s))\n", key, res.LineageEdges)
		return err
	})
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered assets",
		Long: `List registered assets ordered by key. Assets not checked within eight
update intervals are hidden unless --all is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			assets, err := a.registry.GetAll(cmd.Context(), all)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list assets", err)
			}
			return a.out.Render(assets, func(w io.Writer) error {
				tw := newTable(w)
				fmt.Fprintln(tw, "ASSET KEY\tTYPE\tGROUP\tOWNERS\tVERSION\tLAST CHECKED")
				for _, rec := range assets {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
						rec.AssetKey, rec.Type, orDash(rec.Group), joinOrDash(rec.Owners),
						rec.Version, formatTime(rec.LastChecked))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include assets that are no longer checked in")
	return cmd
}

// ShowResult is the output of the show command.
type ShowResult struct {
	Asset  model.AssetRecord    `json:"asset"`
	Schema []model.SchemaColumn `json:"schema"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <asset-key>",
		Short:         "Show one asset and its recorded schema",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.lookupAsset(cmd, args[0])
			if err != nil {
				return err
			}
			schema, err := a.registry.Schema(cmd.Context(), rec.AssetKey)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read schema", err)
			}
			res := ShowResult{Asset: rec, Schema: schema}
			return a.out.Render(res, func(w io.Writer) error { return writeAsset(w, res) })
		},
	}
}

// lookupAsset resolves key to a registered asset, reporting invalid and
// unknown keys through the formatter.
func (a *app) lookupAsset(cmd *cobra.Command, key string) (model.AssetRecord, error) {
	rec, found, err := a.registry.Get(cmd.Context(), key)
	if errors.Is(err, model.ErrInvalidAssetKey) {
		return rec, a.out.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}
	if err != nil {
		return rec, WrapExitError(ExitFailure, "failed to read asset", err)
	}
	if !found {
		return rec, a.out.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("asset %q not found", key), nil)
	}
	return rec, nil
}

func writeAsset(w io.Writer, res ShowResult) error {
	rec := res.Asset
	tw := newTable(w)
	fmt.Fprintf(tw, "Asset:\t%s\n", rec.AssetKey)
	fmt.Fprintf(tw, "Name:\t%s\n", orDash(rec.Name))
	fmt.Fprintf(tw, "Type:\t%s\n", rec.Type)
	fmt.Fprintf(tw, "Group:\t%s\n", orDash(rec.Group))
	fmt.Fprintf(tw, "Pipeline:\t%s\n", orDash(rec.Pipeline))
	fmt.Fprintf(tw, "Owners:\t%s\n", joinOrDash(rec.Owners))
	fmt.Fprintf(tw, "Tags:\t%s\n", orDash(formatTags(rec.Tags)))
	fmt.Fprintf(tw, "Dependencies:\t%s\n", joinOrDash(rec.Dependencies))
	fmt.Fprintf(tw, "Version:\t%d\n", rec.Version)
	fmt.Fprintf(tw, "Last updated:\t%s\n", formatTime(rec.LastUpdated))
	fmt.Fprintf(tw, "Last checked:\t%s\n", formatTime(rec.LastChecked))
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(res.Schema) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = newTable(w)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tNULLABLE")
	for _, col := range res.Schema {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", col.Name, col.DataType, col.IsNullable)
	}
	return tw.Flush()
}

func formatTags(tags map[string]string) string {
	keys := slices.Sorted(maps.Keys(tags))
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + tags[k]
	}
	return strings.Join(pairs, ",")
}

// LineageResult is the output of the lineage command.
type LineageResult struct {
	AssetKey   string   `json:"asset_key"`
	Upstream   []string `json:"upstream"`
	Downstream []string `json:"downstream"`
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <asset-key>",
		Short: "Show the direct upstream and downstream assets",
		Long: `Show the registered assets directly upstream and downstream of an asset.
Edges to keys that were never registered are not listed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			key, err := model.NormalizeAssetKey(args[0])
			if err != nil {
				return a.out.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
			}
			up, err := a.store.Upstream(ctx, key)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read lineage", err)
			}
			down, err := a.store.Downstream(ctx, key)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read lineage", err)
			}

			res := LineageResult{AssetKey: key, Upstream: assetKeys(up), Downstream: assetKeys(down)}
			return a.out.Render(res, func(w io.Writer) error {
				writeKeyList(w, "Upstream", res.Upstream)
				writeKeyList(w, "Downstream", res.Downstream)
				return nil
			})
		},
	}
}

func assetKeys(recs []model.AssetRecord) []string {
	keys := make([]string, len(recs))
	for i, rec := range recs {
		keys[i] = rec.AssetKey
	}
	return keys
}

func writeKeyList(w io.Writer, title string, keys []string) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(keys) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\n", k)
	}
}

// NewExecutionsCommand creates the executions command.
func NewExecutionsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "executions <asset-key>",
		Short:         "Show the execution history of an asset, newest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			key, err := model.NormalizeAssetKey(args[0])
			if err != nil {
				return a.out.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
			}
			execs, err := a.store.Executions(cmd.Context(), key, limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read executions", err)
			}
			return a.out.Render(execs, func(w io.Writer) error { return writeExecutions(w, execs) })
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of executions (0 for all)")
	return cmd
}

func writeExecutions(w io.Writer, execs []model.ExecutionRecord) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tSTARTED\tDURATION\tRECORDS\tERROR")
	for _, e := range execs {
		duration := "-"
		if d, ok := e.Duration(); ok {
			duration = d.String()
		}
		records := "-"
		if e.RecordsProcessed != nil {
			records = fmt.Sprint(*e.RecordsProcessed)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.RunID, e.Status, formatTime(e.StartedAt), duration, records, orDash(e.ErrorMessage()))
	}
	return tw.Flush()
}

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	RunID    string
	Status   string
	Records  int64
	Duration time.Duration
	Error    string
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record <asset-key>",
		Short: "Append an execution to an asset's history",
		Long: `Append one execution record. The run completes now and started
--duration ago; a running execution has no completion time.

Example:
  assetgov record sales.orders --status success --records 1200 --duration 45s
  assetgov record sales.orders --status failed --error "source timeout"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "orchestrator run id (default: generated)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "execution status (success|failed|running)")
	cmd.Flags().Int64Var(&opts.Records, "records", -1, "records processed (omit if unknown)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "wall time of the run")
	cmd.Flags().StringVar(&opts.Error, "error", "", "error message of a failed run")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}

func parseExecutionStatus(s string) (model.ExecutionStatus, error) {
	switch st := model.ExecutionStatus(strings.ToLower(s)); st {
	case model.ExecutionSuccess, model.ExecutionFailed, model.ExecutionRunning:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q: must be success, failed or running", s)
}

func runRecord(opts *RecordOptions, key string, cmd *cobra.Command) error {
	status, err := parseExecutionStatus(opts.Status)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --status", err)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	key, err = model.NormalizeAssetKey(key)
	if err != nil {
		return a.out.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}
	runID := opts.RunID
	if runID == "" {
		runID = runid.UUIDv7Generator{}.Generate()
	}

	now := a.clock.Now()
	rec := model.ExecutionRecord{
		AssetKey:  key,
		RunID:     runID,
		Status:    status,
		StartedAt: now.Add(-opts.Duration),
	}
	if status != model.ExecutionRunning {
		rec.CompletedAt = model.Time(now)
	}
	if opts.Records >= 0 {
		rec.RecordsProcessed = model.Int64(opts.Records)
	}
	if opts.Error != "" {
		rec.Metadata = map[string]any{"error": opts.Error}
	}

	id, err := a.store.SaveExecution(cmd.Context(), rec)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to record execution", err)
	}
	a.metrics.Execution(string(status))
	rec.ID = id

	return a.out.Render(rec, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Recorded %s execution %d of %s (run %s)\n", status, id, key, runID)
		return err
	})
}
