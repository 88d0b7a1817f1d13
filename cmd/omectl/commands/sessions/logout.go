package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
	sessionstore "github.com/marmos91/omectl/internal/cli/sessions"
	"github.com/marmos91/omectl/internal/logger"
	"github.com/marmos91/omectl/pkg/remote"
)

// NewLogoutCmd builds "sessions logout".
func NewLogoutCmd(c *command.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out of the current session",
		Long: `Close the current session on the server and remove it from the cache.

The current pointers move to the newest remaining session of the same user,
or are cleared when none is left.

Examples:
  omectl sessions logout`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.Store()
			if err != nil {
				return err
			}

			server, user, sess, err := current(store)
			if errors.Is(err, sessionstore.ErrNotFound) {
				c.Warning("Not logged in.")
				return nil
			}
			if err != nil {
				return err
			}

			terminate(cmd.Context(), c, store, server, user, sess)

			if err := store.Remove(server, user, sess); err != nil && !errors.Is(err, sessionstore.ErrNotFound) {
				return fmt.Errorf("failed to remove session: %w", err)
			}
			c.Success(fmt.Sprintf("Logged out of %s@%s.", user, server))
			return nil
		},
	}
}

// current returns the current session triple, or ErrNotFound.
func current(store *sessionstore.Store) (server, user, sess string, err error) {
	if server, err = store.CurrentHost(); err != nil {
		return "", "", "", err
	}
	if user, err = store.CurrentUser(server); err != nil {
		return "", "", "", err
	}
	if sess, err = store.CurrentSess(server, user); err != nil {
		return "", "", "", err
	}
	return server, user, sess, nil
}

// terminate closes the session on the server when the adapter supports it.
// Failures are logged and otherwise ignored.
func terminate(ctx context.Context, c *command.Context, store *sessionstore.Store, server, user, sess string) {
	adapter := c.Adapter()
	t, ok := adapter.(remote.Terminator)
	if !ok {
		return
	}

	props, err := store.Get(server, user, sess)
	if err != nil {
		logger.DebugCtx(ctx, "cannot read session before logout", logger.Session(sess), logger.Err(err))
		return
	}

	h, err := adapter.Attach(ctx, server, user, sess, props)
	if err != nil {
		logger.DebugCtx(ctx, "session already gone", logger.Session(sess), logger.Err(err))
		return
	}
	defer adapter.Close(h)

	if err := t.Terminate(ctx, h); err != nil {
		logger.WarnCtx(ctx, "failed to close session on server", logger.Server(server), logger.Session(sess), logger.Err(err))
	}
}
