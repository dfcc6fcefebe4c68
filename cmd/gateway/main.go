package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version é definido no build via -ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "gateway",
		Short:        "Admission gateway: rate limit, attack detection and blacklist in front of an upstream",
		SilenceUsage: true,
	}

	root.AddCommand(
		runCmd(),
		scanCmd(),
		policiesCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
