// Package main provides the entry point for the hallsweep CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hallsweep/cmd/hallsweep/commands"
	"github.com/Sumatoshi-tech/hallsweep/pkg/version"
)

func main() {
	version.InitBinaryVersion()
	gin.SetMode(gin.ReleaseMode)

	rootCmd := &cobra.Command{
		Use:   "hallsweep",
		Short: "Distributed magneto-transport bias sweeps",
		Long: `hallsweep computes transmission tensors over a grid of field and voltage
biases, spreading the points across workers and checkpointing progress.

Commands:
  run       Compute a sweep (or a single bias point)
  report    Render a finished sweep artifact
  validate  Check a configuration file against the schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
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
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
