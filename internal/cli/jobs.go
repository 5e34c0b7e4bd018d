package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/store"
)

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control the scheduled maintenance jobs",
	}
	cmd.AddCommand(newJobsListCommand(rootOpts))
	cmd.AddCommand(newJobsRunCommand(rootOpts))
	cmd.AddCommand(newJobsHistoryCommand(rootOpts))
	cmd.AddCommand(newJobsToggleCommand(rootOpts, "enable", true))
	cmd.AddCommand(newJobsToggleCommand(rootOpts, "disable", false))
	return cmd
}

func newJobsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List scheduled jobs with their latest execution",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			states, err := a.scheduler().Jobs(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list jobs", err)
			}
			return a.out.Render(states, func(w io.Writer) error {
				tw := newTable(w)
				fmt.Fprintln(tw, "JOB\tTYPE\tSCHEDULE\tENABLED\tLAST RUN\tNEXT RUN\tLAST STATUS")
				for _, s := range states {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
						s.Name, s.Type, s.ScheduleExpression, s.Enabled,
						formatTimePtr(s.LastRun), formatTimePtr(s.NextRun), orDash(string(s.LastExecutionStatus)))
				}
				return tw.Flush()
			})
		},
	}
}

// RunDueResult is the output of jobs run.
type RunDueResult struct {
	Registered int `json:"registered"`
	Ran        int `json:"ran"`
}

func newJobsRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Register the built-in jobs and run those that are due, once",
		Long: `Register the built-in maintenance jobs with their configured schedules and
run every enabled job whose next run has passed. Suitable for driving the
scheduler from cron instead of a long-running serve process.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			sched := a.scheduler()
			res := RunDueResult{Registered: a.runner.RegisterDefaults(ctx, sched, a.settings.JobScheduler)}
			if res.Ran, err = sched.RunDue(ctx); err != nil {
				return WrapExitError(ExitFailure, "failed to run due jobs", err)
			}
			return a.out.Render(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Registered %d job(s), ran %d\n", res.Registered, res.Ran)
				return err
			})
		},
	}
}

func newJobsHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "history <job-name>",
		Short:         "Show the executions of a job, newest first",
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

			state, err := a.scheduler().JobStatus(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return a.out.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("job %q not found", args[0]), nil)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read job", err)
			}
			execs, err := a.store.JobExecutions(ctx, state.ID, limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read job executions", err)
			}
			return a.out.Render(execs, func(w io.Writer) error { return writeJobExecutions(w, execs) })
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of executions (0 for all)")
	return cmd
}

func writeJobExecutions(w io.Writer, execs []model.JobExecution) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tENDED\tERROR")
	for _, e := range execs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.Status, formatTime(e.StartTime), formatTimePtr(e.EndTime), orDash(e.ErrorMessage))
	}
	return tw.Flush()
}

func newJobsToggleCommand(rootOpts *RootOptions, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:           verb + " <job-name>",
		Short:         fmt.Sprintf("%s a scheduled job", map[bool]string{true: "Enable", false: "Disable"}[enabled]),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.scheduler().SetEnabled(cmd.Context(), args[0], enabled)
			if errors.Is(err, store.ErrNotFound) {
				return a.out.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("job %q not found", args[0]), nil)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to update job", err)
			}
			res := map[string]any{"job_name": args[0], "enabled": enabled}
			return a.out.Render(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Job %s %sd\n", args[0], verb)
				return err
			})
		},
	}
}
