// ABOUTME: Root cobra command for the henk binary
// ABOUTME: Loads config and builds the zap logger shared by every subcommand
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/callhenk/henk-sub004/config"
	"github.com/callhenk/henk-sub004/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is stamped at build time with -ldflags.
var Version = "0.1.0"

var (
	dbPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "henk",
	Short:         "Henk - AI voice fundraising backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DatabaseURL = dbPath
		}

		logger, err = newLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "Database path or Postgres URL (default: $DATABASE_URL or ~/.local/share/henk/henk.db)")
	rootCmd.AddCommand(serveCmd, migrateCmd, dialerCmd, mcpCmd, versionCmd)
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger builds a production logger; format "console" switches to the
// human-readable encoder.
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zc := zap.NewProductionConfig()
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	// stdout belongs to the MCP transport.
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// openDatabase opens the configured database and applies migrations.
func openDatabase(ctx context.Context) (*db.DB, error) {
	database, err := db.OpenDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, database, logger); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "henk version %s\n", Version)
	},
}
