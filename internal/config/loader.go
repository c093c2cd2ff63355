package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg, err := LoadUnvalidated()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated reads the environment without validating, so callers can
// apply flag overrides first and validate afterwards.
func LoadUnvalidated() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Import validation
	if strings.TrimSpace(c.Import.DataDir) == "" {
		errs = append(errs, "DATA_DIR is required")
	}
	if c.Import.Dataset == "" {
		errs = append(errs, "DATASET is required")
	}
	if c.Import.BatchSize <= 0 {
		errs = append(errs, fmt.Sprintf("BATCH_SIZE (%d) must be positive", c.Import.BatchSize))
	}
	if c.Import.CheckpointPath == "" {
		errs = append(errs, "CHECKPOINT_PATH is required")
	}
	switch c.Import.CheckpointBackend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("CHECKPOINT_BACKEND (%q) must be one of: file, sqlite", c.Import.CheckpointBackend))
	}
	if c.Import.ProximityRadius < 0 {
		errs = append(errs, "PROXIMITY_RADIUS_M must be non-negative")
	}
	if c.Import.MinInterval < 0 {
		errs = append(errs, "BATCH_MIN_INTERVAL must be non-negative")
	}

	// Retry validation
	if c.Retry.Attempts < 0 {
		errs = append(errs, "BATCH_RETRY_ATTEMPTS must be non-negative")
	}
	if c.Retry.Attempts > 0 {
		if c.Retry.InitialDelay <= 0 {
			errs = append(errs, "BATCH_RETRY_INITIAL_DELAY must be positive when retries are enabled")
		}
		if c.Retry.MaxDelay < c.Retry.InitialDelay {
			errs = append(errs, fmt.Sprintf("BATCH_RETRY_MAX_DELAY (%s) must be >= BATCH_RETRY_INITIAL_DELAY (%s)",
				c.Retry.MaxDelay, c.Retry.InitialDelay))
		}
	}

	// Store validation
	switch c.Store.Backend {
	case "neo4j":
		if c.Store.Neo4jURI == "" {
			errs = append(errs, "NEO4J_URI is required for the neo4j backend")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres backend")
		}
		if c.Store.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND (%q) must be one of: neo4j, postgres, memory", c.Store.Backend))
	}
	if c.Store.ConnectTimeout <= 0 {
		errs = append(errs, "STORE_CONNECT_TIMEOUT must be positive")
	}

	// S3 validation
	if strings.HasPrefix(c.Import.DataDir, "s3://") && c.S3.Endpoint == "" {
		errs = append(errs, "S3_ENDPOINT is required when DATA_DIR is an s3:// URL")
	}

	// Status validation
	if c.Status.Addr != "" && !ValidAddr(c.Status.Addr) {
		errs = append(errs, fmt.Sprintf("STATUS_ADDR (%q) must be host:port", c.Status.Addr))
	}
	if c.Status.ShutdownTimeout <= 0 {
		errs = append(errs, "STATUS_SHUTDOWN_TIMEOUT must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Passwords, keys and connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Import: {DataDir: %q, Dataset: %q, BatchSize: %d, Checkpoint: %s:%q}, ",
		c.Import.DataDir, c.Import.Dataset, c.Import.BatchSize, c.Import.CheckpointBackend, c.Import.CheckpointPath)
	fmt.Fprintf(&b, "Retry: {Attempts: %d}, ", c.Retry.Attempts)
	fmt.Fprintf(&b, "Store: {Backend: %q, Neo4jURI: %q, Neo4jUsername: %q, Neo4jPassword: %s, DatabaseURL: %s}, ",
		c.Store.Backend, c.Store.Neo4jURI, c.Store.Neo4jUsername, mask(c.Store.Neo4jPassword), mask(c.Store.DatabaseURL))
	fmt.Fprintf(&b, "S3: {Endpoint: %q, AccessKey: %s, SecretKey: %s}, ",
		c.S3.Endpoint, mask(c.S3.AccessKey), mask(c.S3.SecretKey))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return "[MASKED]"
}
