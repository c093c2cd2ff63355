// Package config provides centralized configuration management for graphload.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables; CLI flags
// override the loaded values.
type Config struct {
	Import  ImportConfig
	Retry   RetryConfig
	Store   StoreConfig
	S3      S3Config
	Status  StatusConfig
	Logging LoggingConfig
}

// ImportConfig holds pipeline settings.
type ImportConfig struct {
	// DataDir is the directory (or s3://bucket/prefix) holding source files (default: data)
	DataDir string `env:"DATA_DIR" default:"data"`

	// Dataset is the registered dataset to import (default: gtfs)
	Dataset string `env:"DATASET" default:"gtfs"`

	// BatchSize is the number of source rows per batch (default: 1000)
	BatchSize int `env:"BATCH_SIZE" default:"1000"`

	// CheckpointPath is where progress is persisted (default: .import_progress.json)
	CheckpointPath string `env:"CHECKPOINT_PATH" default:".import_progress.json"`

	// CheckpointBackend is file or sqlite (default: file)
	CheckpointBackend string `env:"CHECKPOINT_BACKEND" default:"file"`

	// ProximityRadius overrides the radius of every proximity rule when positive
	ProximityRadius float64 `env:"PROXIMITY_RADIUS_M" default:"0"`

	// MinInterval is the minimum pause between batch writes (default: 0, no pacing)
	MinInterval time.Duration `env:"BATCH_MIN_INTERVAL" default:"0s"`
}

// RetryConfig holds store write retry settings.
type RetryConfig struct {
	// Attempts is the number of retries after a transient failure (default: 0)
	Attempts int `env:"BATCH_RETRY_ATTEMPTS" default:"0"`

	// InitialDelay is the delay before the first retry (default: 500ms)
	InitialDelay time.Duration `env:"BATCH_RETRY_INITIAL_DELAY" default:"500ms"`

	// MaxDelay caps the backoff delay (default: 10s)
	MaxDelay time.Duration `env:"BATCH_RETRY_MAX_DELAY" default:"10s"`
}

// StoreConfig holds graph store connection settings.
type StoreConfig struct {
	// Backend is neo4j, postgres or memory (default: neo4j)
	Backend string `env:"STORE_BACKEND" default:"neo4j"`

	// Neo4jURI is the bolt or neo4j URI (default: bolt://localhost:7687)
	Neo4jURI string `env:"NEO4J_URI" default:"bolt://localhost:7687"`

	Neo4jUsername string `env:"NEO4J_USERNAME" envAlt:"NEO4J_USER" default:"neo4j"`
	Neo4jPassword string `env:"NEO4J_PASSWORD"`
	Neo4jDatabase string `env:"NEO4J_DATABASE" default:"neo4j"`

	// DatabaseURL is the PostgreSQL connection string for the postgres backend
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// Provision creates tables or constraints before importing (default: false)
	Provision bool `env:"STORE_PROVISION" default:"false"`

	// ConnectTimeout bounds the initial connectivity check (default: 30s)
	ConnectTimeout time.Duration `env:"STORE_CONNECT_TIMEOUT" default:"30s"`
}

// S3Config holds object store settings used when DataDir is an s3:// URL.
type S3Config struct {
	Endpoint  string `env:"S3_ENDPOINT"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Region    string `env:"S3_REGION"`
	UseSSL    bool   `env:"S3_USE_SSL" default:"true"`
}

// StatusConfig holds the status server settings.
type StatusConfig struct {
	// Addr is the listen address; empty disables the server during runs
	Addr string `env:"STATUS_ADDR"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 5s)
	ShutdownTimeout time.Duration `env:"STATUS_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ValidAddr reports whether addr is a host:port listen address.
func ValidAddr(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	p, err := strconv.Atoi(port)
	return err == nil && p >= 0 && p <= 65535
}
