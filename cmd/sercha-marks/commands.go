package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-marks/internal/core/ports/driving"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(intervalCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [provider]",
	Short: "Sync every enabled provider, or only the one given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := driving.Request{Type: driving.RequestSyncAll}
		if len(args) == 1 {
			req = driving.Request{Type: driving.RequestSyncProvider, ProviderID: args[0]}
		}
		return send(cmd, req)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler and provider status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newControlClient(cfg)

		sched, err := client.Send(cmd.Context(), driving.Request{Type: driving.RequestGetSyncStatus})
		if err != nil {
			return err
		}
		providers, err := client.Send(cmd.Context(), driving.Request{Type: driving.RequestGetProviderStatus})
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), sched.Status, providers.Providers, time.Now())
		return nil
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect <provider>",
	Short: "Connect a provider with its configured token or through the browser",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Cyan.Fprintf(cmd.OutOrStdout(), "Connecting %s. Finish in the browser if one opens.\n", args[0])
		return send(cmd, driving.Request{Type: driving.RequestAuthenticate, ProviderID: args[0]})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <provider>",
	Short: "Revoke and forget a provider's token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd, driving.Request{Type: driving.RequestDisconnect, ProviderID: args[0]})
	},
}

var intervalCmd = &cobra.Command{
	Use:   "interval <milliseconds>",
	Short: "Set the periodic sync interval",
	Long: `Set the periodic sync interval in milliseconds. The periodic timer runs
every max(1, floor(ms/60000)) minutes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", args[0], err)
		}
		return send(cmd, driving.Request{Type: driving.RequestUpdateSyncInterval, Interval: ms})
	},
}

func send(cmd *cobra.Command, req driving.Request) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resp, err := newControlClient(cfg).Send(cmd.Context(), req)
	if err != nil {
		return err
	}
	printResponse(cmd.OutOrStdout(), resp, time.Now())
	return nil
}
