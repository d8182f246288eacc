package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-marks/internal/logging"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon and its control API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger, logCloser, err := logging.New(logging.Options{
			Level:      cfg.Log.Level,
			JSON:       cfg.Log.Format == "json",
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		defer logCloser.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("sercha-marks starting", "version", version, "store", cfg.Store.Backend)

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			a.scheduler.Dispose()
			a.scheduler.Wait()
		}()

		if a.folderID != "" {
			Cyan.Fprintf(cmd.OutOrStdout(), "Bookmark folder %q has id %s. Point a provider at it with its folderId.\n", defaultFolderTitle, a.folderID)
		}

		if err := a.server.Start(ctx); err != nil {
			return err
		}
		logger.Info("sercha-marks stopped")
		return nil
	},
}
