package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"plantwatch/internal/config"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "plantwatch",
		Short:         "Watches plant canopy coverage on a camera feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (YAML or JSON)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Sample the configured source until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), configPath)
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze IMAGE...",
		Short: "Print the vegetation percentage of still images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyze(cmd.OutOrStdout(), configPath, args)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(runCmd, analyzeCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			slog.Error("invalid configuration", slog.String("path", configPath), slog.Any("error", err))
		} else {
			slog.Error("plantwatch failed", slog.Any("error", err))
		}
		os.Exit(1)
	}
}
