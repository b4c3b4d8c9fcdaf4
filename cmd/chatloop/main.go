// Package main implements the chatloop CLI: one-shot runs, the HTTP server,
// model asset checks and failure index queries.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	memory     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "chatloop",
		Short: "Adaptive chat message extraction",
		Long: `chatloop classifies candidate DOM elements of a chat page, searches
extraction plans, verifies the result and remembers what worked per domain.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/chatloop/config.yaml)")
	root.PersistentFlags().BoolVar(&flags.memory, "memory", false, "use an in-memory store instead of SQLite")

	root.AddCommand(
		newRunCmd(flags),
		newServeCmd(flags),
		newModelCmd(flags),
		newFailuresCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chatloop by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
