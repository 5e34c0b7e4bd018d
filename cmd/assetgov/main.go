// Command assetgov is the data asset governance CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/assetgov/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
