// Package config provides centralized configuration management for the
// application. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Export   ExportConfig
	Bridge   BridgeConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds BOM import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 25MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"26214400"`

	// Timeout is the maximum duration for a single import batch (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
}

// ExportConfig holds export package settings.
type ExportConfig struct {
	// BaseDir is where export run folders are created (default: ./exports)
	BaseDir string `env:"EXPORT_BASE_DIR" default:"exports"`

	// Timeout is the maximum duration for a single export run (default: 5m)
	Timeout time.Duration `env:"EXPORT_TIMEOUT" default:"5m"`
}

// BridgeConfig holds Complex Editor bridge connection settings.
type BridgeConfig struct {
	// URL is the bridge base URL (default: http://127.0.0.1:8765)
	URL string `env:"CE_BRIDGE_URL" default:"http://127.0.0.1:8765"`

	// Token is the bearer token for bridge requests (optional)
	Token string `env:"CE_BRIDGE_TOKEN"`

	// Timeout bounds every bridge call (default: 30s)
	Timeout time.Duration `env:"CE_BRIDGE_TIMEOUT" default:"30s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
