package sessions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
	"github.com/marmos91/omectl/internal/cli/prompt"
)

func newClearCmd(c *command.Context) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached session",
		Long: `Remove every session record and pointer from the local cache. The
sessions stay open on their servers until they time out.

Examples:
  # Clear with confirmation
  omectl sessions clear

  # Clear without confirmation
  omectl sessions clear --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.Store()
			if err != nil {
				return err
			}

			if !force {
				n, err := store.Count()
				if err != nil {
					return err
				}
				if n == 0 {
					c.Info("No sessions found.")
					return nil
				}
				ok, err := c.Confirm(fmt.Sprintf("Remove %d cached session(s)?", n), false)
				if err != nil {
					if prompt.IsAborted(err) {
						c.Warning("Aborted.")
						return nil
					}
					return err
				}
				if !ok {
					c.Warning("Aborted.")
					return nil
				}
			}

			removed, err := store.Clear()
			if err != nil {
				return fmt.Errorf("failed to clear sessions: %w", err)
			}
			c.Success(fmt.Sprintf("Removed %d session(s).", removed))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}
