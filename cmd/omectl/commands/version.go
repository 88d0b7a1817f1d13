package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marmos91/omectl/internal/cli/command"
)

func newVersionCmd(c *command.Context) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the omectl version, build information, and system details.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				c.Out(Version)
				return
			}

			c.Outf("%s %s\n", programName, Version)
			c.Outf("  Commit:     %s\n", Commit)
			c.Outf("  Built:      %s\n", Date)
			c.Outf("  Go version: %s\n", runtime.Version())
			c.Outf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Show only version number")
	return cmd
}

// versionString is the one-line version used in logs.
func versionString() string {
	return fmt.Sprintf("%s %s (%s)", programName, Version, Commit)
}
