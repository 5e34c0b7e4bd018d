package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgov/internal/model"
)

// NewHealthCommand creates the health command group.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Evaluate and inspect asset health",
	}
	cmd.AddCommand(newHealthCheckCommand(rootOpts))
	cmd.AddCommand(newHealthShowCommand(rootOpts))
	cmd.AddCommand(newHealthUnhealthyCommand(rootOpts))
	return cmd
}

// CheckResult is the output of health check for a single asset.
type CheckResult struct {
	AssetKey     string              `json:"asset_key"`
	Status       model.HealthStatus  `json:"status"`
	FailureCount int                 `json:"failure_count"`
	Checks       []model.CheckResult `json:"checks"`
	Freshness    *model.CheckResult  `json:"freshness,omitempty"`
	Alerts       int                 `json:"alerts_created"`
}

func newHealthCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [asset-key]",
		Short: "Run health checks now",
		Long: `Evaluate the execution history of one asset, or of every live asset when
no key is given, persist the results and raise alerts exactly as the
scheduled health check job does.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if len(args) == 0 {
				counts, err := a.runner.HealthCheck(ctx, model.Job{})
				if err != nil {
					return WrapExitError(ExitFailure, "health check failed", err)
				}
				return a.out.Render(counts, func(w io.Writer) error {
					tw := newTable(w)
					for _, k := range []string{"assets_checked", "healthy", "unhealthy", "stale", "unknown", "errors", "alerts_created"} {
						fmt.Fprintf(tw, "%s:\t%v\n", k, counts[k])
					}
					return tw.Flush()
				})
			}

			rec, err := a.lookupAsset(cmd, args[0])
			if err != nil {
				return err
			}
			out, err := a.runner.CheckAsset(ctx, rec)
			if err != nil {
				return WrapExitError(ExitFailure, "health check failed", err)
			}
			res := CheckResult{
				AssetKey:     rec.AssetKey,
				Status:       out.Status(),
				FailureCount: out.Evaluation.Summary.FailureCount,
				Checks:       out.Evaluation.Checks,
				Freshness:    out.Freshness,
				Alerts:       out.Alerts,
			}
			return a.out.Render(res, func(w io.Writer) error {
				fmt.Fprintf(w, "%s: %s (consecutive failures: %d, alerts raised: %d)\n",
					res.AssetKey, res.Status, res.FailureCount, res.Alerts)
				checks := res.Checks
				if res.Freshness != nil {
					checks = append(checks, *res.Freshness)
				}
				return writeChecks(w, checks)
			})
		},
	}
}

// HealthView is the output of health show.
type HealthView struct {
	Summary *model.HealthSummary `json:"summary"`
	Checks  []model.CheckResult  `json:"checks"`
}

func newHealthShowCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "show <asset-key>",
		Short:         "Show the stored health summary and recent check results",
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
			var view HealthView
			sum, found, err := a.evaluator.Summary(ctx, key)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read health summary", err)
			}
			if found {
				view.Summary = &sum
			}
			if view.Checks, err = a.evaluator.RecentChecks(ctx, key, limit); err != nil {
				return WrapExitError(ExitFailure, "failed to read health checks", err)
			}

			return a.out.Render(view, func(w io.Writer) error {
				if view.Summary == nil {
					fmt.Fprintf(w, "%s: not evaluated yet\n", key)
				} else {
					s := view.Summary
					fmt.Fprintf(w, "%s: %s (consecutive failures: %d, last healthy: %s, last checked: %s)\n",
						key, s.OverallStatus, s.FailureCount, formatTimePtr(s.LastHealthy), formatTime(s.LastChecked))
				}
				return writeChecks(w, view.Checks)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of check results")
	return cmd
}

func newHealthUnhealthyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "unhealthy",
		Short:         "List assets whose last verdict was UNHEALTHY",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sums, err := a.evaluator.UnhealthyAssets(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read health summaries", err)
			}
			return a.out.Render(sums, func(w io.Writer) error {
				tw := newTable(w)
				fmt.Fprintln(tw, "ASSET KEY\tFAILURES\tLAST HEALTHY\tLAST CHECKED")
				for _, s := range sums {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
						s.AssetKey, s.FailureCount, formatTimePtr(s.LastHealthy), formatTime(s.LastChecked))
				}
				return tw.Flush()
			})
		},
	}
}

func writeChecks(w io.Writer, checks []model.CheckResult) error {
	if len(checks) == 0 {
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "CHECK\tSTATUS\tCHECKED\tMESSAGE")
	for _, c := range checks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Type, c.Status, formatTime(c.CheckedAt), c.Message)
	}
	return tw.Flush()
}
