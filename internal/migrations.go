package internal

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukerupert/ledgerline/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// RunMigrations executes all pending database migrations
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.MigrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// MigratePool runs migrations over a database/sql handle borrowed from the pgx pool.
func MigratePool(pool *pgxpool.Pool, logger *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := RunMigrations(db); err != nil {
		return err
	}

	version, err := goose.GetDBVersion(db)
	if err == nil {
		logger.Info("database migrations applied", "version", version)
	}
	return nil
}
