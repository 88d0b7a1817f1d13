package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
)

func newQuitCmd(c *command.Context) *cobra.Command {
	return &cobra.Command{
		Use:     "quit",
		Aliases: []string{"exit"},
		Short:   "Leave the interactive shell",
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			c.RequestQuit()
			return nil
		},
	}
}
