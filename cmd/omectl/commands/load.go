package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
	"github.com/marmos91/omectl/internal/cli/script"
)

func (a *App) newLoadCmd(c *command.Context) *cobra.Command {
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "load [FILE...]",
		Short: "Run commands from files or standard input",
		Long: `Run omectl commands line by line from one or more files.

Blank lines and lines starting with # are ignored. Each line is split with
shell quoting rules and dispatched like a command line. "-" reads standard
input, which is also the default when no file is given.

A failing line stops the run and its exit code becomes the exit code of
load. With --keep-going the failure is reported and the run continues;
--strict overrides --keep-going.

Examples:
  # Run a script
  omectl load setup.omectl

  # Run several scripts, ignoring failures
  omectl load -k first.omectl second.omectl

  # Read commands from a pipe
  echo "sessions list" | omectl load -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := script.NewBatch(a.Dispatcher)
			b.KeepGoing = keepGoing
			b.Strict = c.Strict()
			if rv := b.Run(cmd.Context(), args); rv != 0 {
				return &command.ExitError{Code: rv}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&keepGoing, "keep-going", "k", false, "Continue after a failing line")
	return cmd
}
