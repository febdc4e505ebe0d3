// Package main provides the entry point for the rbsoak CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rbarena/cmd/rbsoak/commands"
	"github.com/Sumatoshi-tech/rbarena/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	globals := &commands.GlobalFlags{}

	rootCmd := &cobra.Command{
		Use:   "rbsoak",
		Short: "rbsoak - soak and benchmark driver for arena-backed red-black trees",
		Long: `rbsoak exercises the rbtree package at scale.

Commands:
  run       Randomized workload checked against a map oracle
  bench     Fixed insert/lookup/delete timing on a single tree`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&globals.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&globals.Quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewRunCommand(globals))
	rootCmd.AddCommand(commands.NewBenchCommand(globals))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rbsoak %s\n", version.String())
		},
	}
}
