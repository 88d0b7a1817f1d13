package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
)

func newCompletionCmd(c *command.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for omectl.

To load completions:

Bash:
  # Linux:
  $ omectl completion bash > /etc/bash_completion.d/omectl
  # macOS:
  $ omectl completion bash > $(brew --prefix)/etc/bash_completion.d/omectl

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ omectl completion zsh > "${fpath[1]}/_omectl"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ omectl completion fish > ~/.config/fish/completions/omectl.fish

PowerShell:
  PS> omectl completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := c.Stdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}
