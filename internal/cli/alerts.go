package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/store"
)

// NewAlertsCommand creates the alerts command group.
func NewAlertsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and resolve governance alerts",
	}
	cmd.AddCommand(newAlertsListCommand(rootOpts))
	cmd.AddCommand(newAlertsResolveCommand(rootOpts))
	return cmd
}

func newAlertsListCommand(rootOpts *RootOptions) *cobra.Command {
	var asset string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List active alerts, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if asset != "" {
				if asset, err = model.NormalizeAssetKey(asset); err != nil {
					return a.out.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
				}
			}
			alerts, err := a.store.ActiveAlerts(cmd.Context(), asset)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list alerts", err)
			}
			return a.out.Render(alerts, func(w io.Writer) error {
				tw := newTable(w)
				fmt.Fprintln(tw, "ID\tSEVERITY\tTYPE\tASSET KEY\tCREATED\tMESSAGE")
				for _, al := range alerts {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
						al.ID, al.Severity, al.Type, al.AssetKey, formatTime(al.CreatedAt), al.Message)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&asset, "asset", "", "only alerts for this asset key")
	return cmd
}

func newAlertsResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "resolve <alert-id>",
		Short:         "Mark an active alert resolved",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid alert id", err)
			}

			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			resolved, err := a.store.ResolveAlert(ctx, id)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to resolve alert", err)
			}
			alert, err := a.store.Alert(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return a.out.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("alert %d not found", id), nil)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read alert", err)
			}

			return a.out.Render(alert, func(w io.Writer) error {
				if !resolved {
					_, err := fmt.Fprintf(w, "Alert %d was already resolved at %s\n", id, formatTimePtr(alert.ResolvedAt))
					return err
				}
				_, err := fmt.Fprintf(w, "Resolved alert %d (%s on %s)\n", id, alert.Type, alert.AssetKey)
				return err
			})
		},
	}
}
