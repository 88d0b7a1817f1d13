package sessions

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
)

func newFileCmd(c *command.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "file",
		Short: "Print the session store directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.Store()
			if err != nil {
				return err
			}
			c.Out(store.Base())
			return nil
		},
	}
}
