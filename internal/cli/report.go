package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgov/internal/report"
)

// ReportViews lists the report views in display order.
var ReportViews = []string{"inventory", "health", "ownership", "alerts"}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report <inventory|health|ownership|alerts>",
		Short: "Print a governance dashboard view",
		Long: `Print one governance dashboard view:

  inventory  every live asset with owner, tag and dependency counts
  health     display status, stored verdict, active alerts and last run per asset
  ownership  one row per owner and asset
  alerts     active alerts by severity`,
		Args:          cobra.ExactArgs(1),
		ValidArgs:     ReportViews,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			switch args[0] {
			case "inventory":
				rows := a.reporter.Inventory(ctx)
				return a.out.Render(rows, func(w io.Writer) error { return report.WriteInventory(w, rows) })
			case "health":
				rows := a.reporter.Health(ctx)
				return a.out.Render(rows, func(w io.Writer) error { return report.WriteHealth(w, rows) })
			case "ownership":
				rows := a.reporter.Ownership(ctx)
				return a.out.Render(rows, func(w io.Writer) error { return report.WriteOwnership(w, rows) })
			case "alerts":
				counts := a.reporter.Alerts(ctx)
				return a.out.Render(counts, func(w io.Writer) error { return report.WriteAlertCounts(w, counts) })
			}
			return a.out.Fail(ExitCommandError, ErrCodeInvalidInput,
				fmt.Sprintf("unknown report %q: must be one of %v", args[0], ReportViews), nil)
		},
	}
}
