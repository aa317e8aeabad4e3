// pkg/connector/connector.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Dialect carries the SQL-flavor differences the store has to care about
type Dialect struct {
	// Name of the dialect, used in logs
	Name string

	// BindType is the sqlx placeholder style (sqlx.QUESTION or sqlx.DOLLAR)
	BindType int

	// CompactStatement returns the statement that reclaims storage after a
	// bulk delete on the given table, or "" when the engine needs none.
	CompactStatement func(qualifiedTable string) string
}

// DatabaseConnector defines the interface for table-store backends
type DatabaseConnector interface {
	// DB returns the underlying database handle
	DB() *sqlx.DB

	// Dialect reports the SQL flavor of the backend
	Dialect() Dialect

	// EnsureSchema creates the named schema if it does not exist
	EnsureSchema(ctx context.Context, schema string) error

	// Validate verifies the connection and permissions
	Validate(ctx context.Context) error

	// QueryTimeout is the per-statement timeout the store should apply
	QueryTimeout() time.Duration

	// Close closes the connection and releases resources
	Close() error
}

// PingWithTimeout attempts to ping a database with a timeout
func PingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping failed after %v: %w", timeout, err)
	}
	return nil
}

// ApplyConnectionSettings configures database connection pool settings
func ApplyConnectionSettings(db *sql.DB, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if maxIdleTime > 0 {
		db.SetConnMaxIdleTime(maxIdleTime)
	}
}

// LogConnectionStats logs connection pool statistics
func LogConnectionStats(logger *zap.Logger, name string, db *sql.DB) {
	stats := db.Stats()
	logger.Debug("Connection pool stats",
		zap.String("database", name),
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
		zap.Int("max_open", stats.MaxOpenConnections),
	)
}
