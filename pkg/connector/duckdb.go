// pkg/connector/duckdb.go
package connector

import (
	"context"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"lakelog/pkg/config"
)

// DuckDBConnector implements DatabaseConnector over an embedded DuckDB file.
// This is the default backend: the database file is the lakehouse.
type DuckDBConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.DuckDBConfig
}

// NewDuckDBConnector opens (or creates) the DuckDB database file
func NewDuckDBConnector(ctx context.Context, cfg *config.DuckDBConfig, logger *zap.Logger) (*DuckDBConnector, error) {
	log := logger.Named("duckdb-connector")

	log.Info("Opening DuckDB database", zap.String("path", cfg.Path))

	db, err := sqlx.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB database: %w", err)
	}

	// DuckDB is an in-process single-writer engine; one connection is enough
	// and avoids writer contention.
	db.SetMaxOpenConns(1)

	if err := PingWithTimeout(ctx, db.DB, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to DuckDB: %w", err)
	}

	return &DuckDBConnector{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

// DB returns the underlying database handle
func (c *DuckDBConnector) DB() *sqlx.DB {
	return c.db
}

// Dialect reports the DuckDB SQL flavor
func (c *DuckDBConnector) Dialect() Dialect {
	return Dialect{
		Name:     "duckdb",
		BindType: sqlx.QUESTION,
		CompactStatement: func(string) string {
			// CHECKPOINT truncates the WAL and compacts the database file
			return "CHECKPOINT"
		},
	}
}

// EnsureSchema creates the named schema if it does not exist
func (c *DuckDBConnector) EnsureSchema(ctx context.Context, schema string) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	return nil
}

// Validate verifies the database is usable
func (c *DuckDBConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query DuckDB version: %w", err)
	}

	c.logger.Info("Connected to DuckDB",
		zap.String("version", version),
		zap.String("path", c.cfg.Path))
	return nil
}

// QueryTimeout is the per-statement timeout the store should apply
func (c *DuckDBConnector) QueryTimeout() time.Duration {
	return c.cfg.QueryTimeout
}

// Close closes the database
func (c *DuckDBConnector) Close() error {
	c.logger.Info("Closing DuckDB database", zap.String("path", c.cfg.Path))
	return c.db.Close()
}
