package sessions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
)

// NewLoginCmd builds "sessions login".
func NewLoginCmd(c *command.Context) *cobra.Command {
	var login command.LoginFlags

	cmd := &cobra.Command{
		Use:   "login [[user@]server[:port]]",
		Short: "Log in to a server or reuse a cached session",
		Long: `Log in to a server and print the session id.

The server and user come from the flags or the target argument, then from
the current session, and are prompted for otherwise. A cached session of
that server and user is reused when it is alive and its group and port
match the request; sessions the server no longer knows are dropped from
the cache. When none can be reused, the password is asked for and a new
session is created.

Examples:
  # Log in interactively
  omectl sessions login

  # Log in as alice, prompting for the password
  omectl sessions login alice@example.org

  # Log in to a given group on a non-default port
  omectl sessions login -s example.org -u alice -g lab -p 4064

  # Join an existing session by key
  omectl sessions login -s example.org -u alice -k 1c3f...

  # Only reuse cached sessions, never prompt
  omectl sessions login alice@example.org --no-password`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := login.Options(target(args))
			if err != nil {
				return err
			}

			s, err := c.Conn(cmd.Context(), opts)
			if err != nil {
				return err
			}

			switch {
			case s.New && opts.Key != "":
				c.Info(fmt.Sprintf("Joined session for %s@%s.", s.User, s.Server))
			case s.New:
				c.Info(fmt.Sprintf("Created session for %s@%s.", s.User, s.Server))
			default:
				c.Info(fmt.Sprintf("Using session for %s@%s.", s.User, s.Server))
			}
			c.Out(s.ID)
			return nil
		},
	}

	login.AddFlags(cmd.Flags())
	return cmd
}
