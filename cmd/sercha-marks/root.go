package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-marks/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "sercha-marks",
	Short: "Keep a bookmark folder in sync with your open work items",
	Long: `sercha-marks is a background daemon that mirrors the pull requests, issues
and merge requests assigned to you into a local bookmark folder.

Run "sercha-marks serve" to start the daemon. The other commands talk to a
running daemon through its control API.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: ~/.sercha-marks/config.yaml)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		Red.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
