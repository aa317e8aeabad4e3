// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend identifies the table-store engine used for the monitoring tables.
type Backend string

const (
	BackendDuckDB    Backend = "duckdb"
	BackendPostgres  Backend = "postgres"
	BackendSnowflake Backend = "snowflake"
)

// Config represents the full lakelog configuration
type Config struct {
	// Project identity
	ProjectName   string
	Workspace     string // empty means auto-detect from environment
	ForceRecreate bool

	// Table store
	Backend   Backend
	DuckDB    *DuckDBConfig
	Postgres  *PostgresConfig
	Snowflake *SnowflakeConfig

	// Readiness polling
	ReadyMaxRetries int
	ReadyInterval   time.Duration

	// Semantic model service
	Semantic *SemanticConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// SemanticConfig holds the coordinates of the BI semantic-model service
type SemanticConfig struct {
	BaseURL     string
	ModelName   string // defaults to SM_<project>_Monitoring
	TokenEnvVar string // environment variable holding the bearer token
	TokenScope  string
	HTTPTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig(projectName string) (*Config, error) {
	if projectName == "" {
		return nil, errors.New("project name is required")
	}

	cfg := &Config{
		ProjectName:   projectName,
		Workspace:     getEnv("LAKELOG_WORKSPACE", ""),
		ForceRecreate: getEnvAsBool("LAKELOG_FORCE_RECREATE", false),

		Backend: Backend(getEnv("LAKELOG_BACKEND", string(BackendDuckDB))),

		ReadyMaxRetries: getEnvAsInt("LAKELOG_READY_MAX_RETRIES", 15),
		ReadyInterval:   time.Duration(getEnvAsInt("LAKELOG_READY_INTERVAL_SECONDS", 2)) * time.Second,

		LogLevel:  getEnv("LAKELOG_LOG_LEVEL", "info"),
		LogFormat: getEnv("LAKELOG_LOG_FORMAT", "json"),
	}

	// Only the selected backend's configuration is loaded; the others stay nil.
	switch cfg.Backend {
	case BackendDuckDB:
		cfg.DuckDB = LoadDuckDBConfig(projectName)
	case BackendPostgres:
		pgCfg, err := LoadPostgresConfig()
		if err != nil {
			return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
		}
		cfg.Postgres = pgCfg
	case BackendSnowflake:
		sfCfg, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, errors.New("failed to load Snowflake configuration: " + err.Error())
		}
		cfg.Snowflake = sfCfg
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	cfg.Semantic = LoadSemanticConfig(projectName)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSemanticConfig loads the semantic-model service configuration.
// A missing base URL is valid: semantic-model provisioning is simply skipped.
func LoadSemanticConfig(projectName string) *SemanticConfig {
	return &SemanticConfig{
		BaseURL:     getEnv("LAKELOG_SEMANTIC_BASE_URL", ""),
		ModelName:   getEnv("LAKELOG_SEMANTIC_MODEL", "SM_"+projectName+"_Monitoring"),
		TokenEnvVar: getEnv("LAKELOG_TOKEN_ENV_VAR", "LAKELOG_SEMANTIC_TOKEN"),
		TokenScope:  getEnv("LAKELOG_TOKEN_SCOPE", "storage"),
		HTTPTimeout: time.Duration(getEnvAsInt("LAKELOG_SEMANTIC_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.ProjectName == "" {
		return errors.New("project name is required")
	}

	if c.ReadyMaxRetries <= 0 {
		return errors.New("readiness retry budget must be positive")
	}

	if c.ReadyInterval <= 0 {
		return errors.New("readiness interval must be positive")
	}

	switch c.Backend {
	case BackendDuckDB:
		if c.DuckDB == nil {
			return errors.New("duckdb configuration is required")
		}
	case BackendPostgres:
		if c.Postgres == nil {
			return errors.New("postgres configuration is required")
		}
	case BackendSnowflake:
		if c.Snowflake == nil {
			return errors.New("snowflake configuration is required")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	return nil
}

// LakehouseName returns the schema holding the three monitoring tables.
func (c *Config) LakehouseName() string {
	return "lh_" + sanitizeIdentifier(c.ProjectName) + "_monitoring"
}

// sanitizeIdentifier lowercases and replaces characters that are unsafe
// in an unquoted SQL identifier
func sanitizeIdentifier(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
