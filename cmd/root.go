// Package cmd defines the CLI commands for the stockboard executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twstocklab/stockboard/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockboard",
		Short: "Batched stock data refresh engine and dashboard API.",
		Long: `stockboard drives batched, rate-limited refresh runs against an
upstream stock data service and serves the dashboard API around the
collected data.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./config)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRefreshCmd())

	return cmd
}

// loadConfig reads configuration per the --config flag.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
