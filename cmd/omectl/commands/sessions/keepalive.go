package sessions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
)

func newKeepAliveCmd(c *command.Context) *cobra.Command {
	var login command.LoginFlags

	cmd := &cobra.Command{
		Use:   "keepalive [[user@]server[:port]]",
		Short: "Ping a cached session so it does not time out",
		Long: `Attach to a cached session and reset its idle timer on the server.

The newest cached session compatible with the given options is used, the
same one "sessions login" would reuse. No new session is created: when no
cached session is alive the command fails, and --password is rejected.

Examples:
  omectl sessions keepalive
  omectl sessions keepalive alice@example.org -g lab`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := login.Options(target(args))
			if err != nil {
				return err
			}
			if opts.Password != "" {
				return command.Usagef("keepalive never creates a session; drop --password")
			}
			opts.NoPassword = true

			s, err := c.Conn(cmd.Context(), opts)
			if err != nil {
				return err
			}
			c.Success(fmt.Sprintf("Session for %s@%s is alive.", s.User, s.Server))
			c.Out(s.ID)
			return nil
		},
	}

	login.AddFlags(cmd.Flags())
	return cmd
}
