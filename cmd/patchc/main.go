// Command patchc is the patch normalization compiler CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/patchflow/patchflow/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// ExitErrors already wrote their output inside the command.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
