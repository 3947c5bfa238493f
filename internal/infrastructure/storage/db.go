// Package storage persists run and node-instance history behind the
// engine, via a monitoring.Observer that writes to Postgres through Bun.
// Runs themselves stay fully in-memory; this package exists only so a
// terminated WorkflowContext can still be inspected after the process that
// ran it is gone.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/nodeflow/internal/infrastructure/storage/models"
)

// Config holds database connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// NewDB opens a Bun connection over pgdriver and registers the run-history
// models.
func NewDB(cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(30*time.Second),
		pgdriver.WithDialTimeout(10*time.Second),
		pgdriver.WithReadTimeout(10*time.Second),
		pgdriver.WithWriteTimeout(10*time.Second),
	)

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())
	db.RegisterModel((*models.RunModel)(nil), (*models.NodeInstanceModel)(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the run-history tables if they don't already exist.
func Migrate(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*models.RunModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create nodeflow_runs: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*models.NodeInstanceModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create nodeflow_node_instances: %w", err)
	}
	return nil
}

// LoggingPing is a small helper so callers get a structured line instead of
// a silent success when verifying a fresh connection.
func LoggingPing(ctx context.Context, db *bun.DB, log zerolog.Logger) error {
	if err := db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("database ping failed")
		return err
	}
	log.Info().Msg("database connection established")
	return nil
}
