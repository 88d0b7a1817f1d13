// Package sessions implements the sessions command group for omectl.
package sessions

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
)

// New builds the sessions command with its subcommands.
func New(c *command.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage cached server sessions",
		Long: `Manage the sessions cached in the local session store.

A login reuses the newest cached session of the selected server and user
when it is still alive and matches the requested group and port. Otherwise
a password is asked for and a new session is created and cached.

Examples:
  # Log in, reusing a cached session when possible
  omectl sessions login alice@example.org

  # List cached sessions
  omectl sessions list

  # Show the current session
  omectl sessions who

  # Log out of the current session
  omectl sessions logout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return command.Usagef("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return cmd.Help()
		},
	}

	cmd.AddCommand(NewLoginCmd(c))
	cmd.AddCommand(NewLogoutCmd(c))
	cmd.AddCommand(newListCmd(c))
	cmd.AddCommand(newClearCmd(c))
	cmd.AddCommand(newWhoCmd(c))
	cmd.AddCommand(newKeepAliveCmd(c))
	cmd.AddCommand(newFileCmd(c))
	return cmd
}

func target(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
