// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"lakelog/pkg/config"
)

// ConnectorFactory creates table-store connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateConnector creates the connector for the configured backend
func (f *ConnectorFactory) CreateConnector(ctx context.Context) (DatabaseConnector, error) {
	f.logger.Info("Creating table-store connector",
		zap.String("backend", string(f.cfg.Backend)))

	switch f.cfg.Backend {
	case config.BackendDuckDB:
		conn, err := NewDuckDBConnector(ctx, f.cfg.DuckDB, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
		}
		return conn, nil

	case config.BackendPostgres:
		conn, err := NewPostgresConnector(ctx, f.cfg.Postgres, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
		}
		return conn, nil

	case config.BackendSnowflake:
		conn, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
		}
		return conn, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", f.cfg.Backend)
	}
}
