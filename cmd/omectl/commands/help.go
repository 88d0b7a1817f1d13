package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
)

func newHelpCmd(c *command.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "help [topic]",
		Short: "Show help for a command",
		Long: `List the available commands, or describe one of them.

Examples:
  omectl help
  omectl help sessions`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := ""
			if len(args) == 1 {
				topic = args[0]
			}

			text, err := c.Registry().Help(topic)
			if err != nil {
				return err
			}
			c.Print(text)

			if topic == "" {
				return nil
			}
			if sub, _, err := cmd.Root().Find([]string{topic}); err == nil && sub != cmd.Root() {
				c.Out("")
				c.Print(sub.UsageString())
			}
			return nil
		},
	}
}
