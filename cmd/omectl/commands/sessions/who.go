package sessions

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
	sessionstore "github.com/marmos91/omectl/internal/cli/sessions"
)

func newWhoCmd(c *command.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "who",
		Short: "Show the current session",
		Long: `Show the server, user and id of the current session. Exits with
status 1 when there is none.

Examples:
  omectl sessions who
  omectl sessions who -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.Store()
			if err != nil {
				return err
			}

			server, user, sess, err := current(store)
			if errors.Is(err, sessionstore.ErrNotFound) {
				return c.Die(command.ExitFailure, "Not logged in.")
			}
			if err != nil {
				return err
			}

			e, err := store.Lookup(server, user, sess)
			if err != nil {
				return err
			}
			return c.Printer().Print(SessionList{{
				Server:   e.Server,
				User:     e.User,
				ID:       e.ID,
				Group:    e.Props[sessionstore.KeyGroup],
				Port:     e.Props[sessionstore.KeyPort],
				LastUsed: e.ModTime,
				Current:  true,
			}})
		},
	}
}
