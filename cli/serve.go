// ABOUTME: serve, migrate and dialer subcommands
// ABOUTME: Long-running commands stop cleanly on SIGINT or SIGTERM
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/dialer"
	"github.com/callhenk/henk-sub004/elevenlabs"
	"github.com/callhenk/henk-sub004/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		return web.NewServer(cfg, database, logger).ListenAndServe(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer database.Close()

		version, err := db.MigrationVersion(cmd.Context(), database)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		logger.Info("database is up to date", zap.Int64("version", version))
		return nil
	},
}

var dialerCmd = &cobra.Command{
	Use:   "dialer",
	Short: "Run the campaign dialer worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.ElevenLabs.Enabled() {
			return fmt.Errorf("the dialer requires ELEVENLABS_API_KEY")
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
		placer := campaigns.NewPlacer(database, campaigns.PlacerOptions{
			ElevenLabs:           elevenlabs.NewClient(cfg.ElevenLabs.APIKey, cfg.ElevenLabs.BaseURL, httpClient),
			DefaultPhoneNumberID: cfg.ElevenLabs.PhoneNumberID,
		}, logger)

		d := dialer.New(database, placer, dialer.Options{
			Interval:     cfg.Dialer.Interval,
			BatchSize:    cfg.Dialer.BatchSize,
			Concurrency:  cfg.Dialer.Concurrency,
			ClaimTimeout: cfg.Dialer.ClaimTimeout,
		}, logger)
		return d.Run(ctx)
	},
}
