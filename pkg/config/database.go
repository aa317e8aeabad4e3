// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// DuckDBConfig holds settings for the embedded DuckDB backend
type DuckDBConfig struct {
	// Path of the database file. An empty path opens an in-memory database,
	// which is only useful for tests.
	Path string

	QueryTimeout time.Duration
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	QueryTimeout time.Duration
}

// SnowflakeConfig holds Snowflake connection parameters
type SnowflakeConfig struct {
	User          string
	Password      string
	Account       string
	Warehouse     string
	Database      string
	Role          string
	Authenticator gosnowflake.AuthType

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	QueryTimeout time.Duration
}

// LoadDuckDBConfig loads DuckDB configuration from environment variables.
// The default database file lives alongside the process, named after the
// project's lakehouse.
func LoadDuckDBConfig(projectName string) *DuckDBConfig {
	defaultPath := filepath.Join(
		getEnv("LAKELOG_DATA_DIR", "."),
		"lh_"+sanitizeIdentifier(projectName)+"_monitoring.duckdb",
	)

	return &DuckDBConfig{
		Path:         getEnv("LAKELOG_DUCKDB_PATH", defaultPath),
		QueryTimeout: time.Duration(getEnvAsInt("LAKELOG_QUERY_TIMEOUT_SECONDS", 60)) * time.Second,
	}
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	user := os.Getenv("LAKELOG_PG_USER")
	if user == "" {
		return nil, errors.New("LAKELOG_PG_USER environment variable is required")
	}

	password := os.Getenv("LAKELOG_PG_PASSWORD")
	if password == "" {
		return nil, errors.New("LAKELOG_PG_PASSWORD environment variable is required")
	}

	database := os.Getenv("LAKELOG_PG_DB")
	if database == "" {
		return nil, errors.New("LAKELOG_PG_DB environment variable is required")
	}

	cfg := &PostgresConfig{
		Host:     getEnv("LAKELOG_PG_HOST", "localhost"),
		Port:     getEnvAsInt("LAKELOG_PG_PORT", 5432),
		User:     user,
		Password: password,
		Database: database,
		SSLMode:  getEnv("LAKELOG_PG_SSLMODE", "disable"),

		MaxOpenConns:    getEnvAsInt("LAKELOG_PG_MAX_OPEN_CONNS", 5),
		MaxIdleConns:    getEnvAsInt("LAKELOG_PG_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: time.Duration(getEnvAsInt("LAKELOG_PG_CONN_MAX_LIFETIME_SECONDS", 1800)) * time.Second,
		ConnMaxIdleTime: time.Duration(getEnvAsInt("LAKELOG_PG_CONN_MAX_IDLE_TIME_SECONDS", 600)) * time.Second,

		QueryTimeout: time.Duration(getEnvAsInt("LAKELOG_QUERY_TIMEOUT_SECONDS", 60)) * time.Second,
	}

	return cfg, nil
}

// LoadSnowflakeConfig loads Snowflake configuration from environment variables
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	user := os.Getenv("LAKELOG_SF_USER")
	if user == "" {
		return nil, errors.New("LAKELOG_SF_USER environment variable is required")
	}

	password := os.Getenv("LAKELOG_SF_PASSWORD")
	if password == "" {
		return nil, errors.New("LAKELOG_SF_PASSWORD environment variable is required")
	}

	account := os.Getenv("LAKELOG_SF_ACCOUNT")
	if account == "" {
		return nil, errors.New("LAKELOG_SF_ACCOUNT environment variable is required")
	}

	warehouse := os.Getenv("LAKELOG_SF_WAREHOUSE")
	if warehouse == "" {
		return nil, errors.New("LAKELOG_SF_WAREHOUSE environment variable is required")
	}

	database := os.Getenv("LAKELOG_SF_DATABASE")
	if database == "" {
		return nil, errors.New("LAKELOG_SF_DATABASE environment variable is required")
	}

	var authenticator gosnowflake.AuthType
	switch getEnv("LAKELOG_SF_AUTHENTICATOR", "snowflake") {
	case "oauth":
		authenticator = gosnowflake.AuthTypeOAuth
	case "externalbrowser":
		authenticator = gosnowflake.AuthTypeExternalBrowser
	case "jwt":
		authenticator = gosnowflake.AuthTypeJwt
	default:
		authenticator = gosnowflake.AuthTypeSnowflake
	}

	cfg := &SnowflakeConfig{
		User:          user,
		Password:      password,
		Account:       account,
		Warehouse:     warehouse,
		Database:      database,
		Role:          getEnv("LAKELOG_SF_ROLE", ""),
		Authenticator: authenticator,

		MaxOpenConns:    getEnvAsInt("LAKELOG_SF_MAX_OPEN_CONNS", 5),
		MaxIdleConns:    getEnvAsInt("LAKELOG_SF_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: time.Duration(getEnvAsInt("LAKELOG_SF_CONN_MAX_LIFETIME_SECONDS", 600)) * time.Second,
		ConnMaxIdleTime: time.Duration(getEnvAsInt("LAKELOG_SF_CONN_MAX_IDLE_TIME_SECONDS", 300)) * time.Second,

		QueryTimeout: time.Duration(getEnvAsInt("LAKELOG_QUERY_TIMEOUT_SECONDS", 60)) * time.Second,
	}

	return cfg, nil
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

// ConnectionString returns a formatted Snowflake DSN
func (c *SnowflakeConfig) ConnectionString() string {
	dsn := fmt.Sprintf("%s:%s@%s/%s?warehouse=%s&authenticator=%s",
		c.User,
		c.Password,
		c.Account,
		c.Database,
		c.Warehouse,
		c.Authenticator,
	)

	if c.Role != "" {
		dsn += "&role=" + c.Role
	}

	return dsn
}
