// ABOUTME: Embedded schema migrations run through goose
// ABOUTME: Applies db/migrations/*.sql for either dialect and routes goose output to zap
package db

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Fatalf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Infof(format, v...) }

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, d *DB, logger *zap.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if logger == nil {
		logger = zap.NewNop()
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log: logger.Named("migrate").Sugar()})
	if err := goose.SetDialect(string(d.dialect)); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, d.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the schema version currently applied.
func MigrationVersion(ctx context.Context, d *DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(string(d.dialect)); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, d.DB)
}
