package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set with -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// no config or cluster access needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintf(c.OutOrStdout(), "kaos-ui %s (commit %s, %s)\n", Version, GitCommit, runtime.Version())
		},
	}
}
