package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// InitResult is the JSON output of the init command.
type InitResult struct {
	Database      string `json:"database"`
	SchemaVersion uint   `json:"schema_version"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the governance database",
		Long: `Create the governance database if it does not exist and apply any
pending schema migrations. Every other command does this implicitly; init
is useful to prepare a database ahead of deployment.

Example:
  assetgov init --db ./metadata.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			version, _, err := a.store.SchemaVersion(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read schema version", err)
			}
			res := InitResult{Database: a.dbPath, SchemaVersion: version}
			return a.out.Render(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Database %s ready (schema version %d)\n", res.Database, res.SchemaVersion)
				return err
			})
		},
	}
}
