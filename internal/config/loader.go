package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadSection fills one section struct, such as *IngestConfig, from the
// environment without requiring the settings of other sections.
func LoadSection(section any) error {
	v := reflect.ValueOf(section)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config section must be a pointer to a struct, got %T", section)
	}
	if err := loadStruct(v.Elem()); err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	return nil
}

// LoadEnvFile applies a .env file on top of the process environment. A
// missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
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

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
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

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
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

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
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

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if _, ok := validDrivers[strings.ToLower(c.Database.Driver)]; !ok {
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, sqlite", c.Database.Driver))
	}

	// Ingest validation
	if strings.TrimSpace(c.Ingest.Entity) == "" {
		errs = append(errs, "INGEST_ENTITY must not be blank")
	}
	if c.Ingest.ComponentID <= 0 {
		errs = append(errs, "INGEST_COMPONENT_ID must be positive")
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, "INGEST_BATCH_SIZE must be positive")
	}
	if c.Ingest.Timeout <= 0 {
		errs = append(errs, "INGEST_TIMEOUT must be positive")
	}
	switch c.Ingest.IDStrategy {
	case "returning", "recent":
	default:
		errs = append(errs, fmt.Sprintf("INGEST_ID_STRATEGY (%q) must be one of: returning, recent", c.Ingest.IDStrategy))
	}

	// Watch validation
	if c.Watch.Interval <= 0 {
		errs = append(errs, "WATCH_INTERVAL must be positive")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "SERVER_MAX_BODY_BYTES must be positive")
	}
	if c.Server.MaxConcurrentRuns <= 0 {
		errs = append(errs, "RUN_MAX_CONCURRENT must be positive")
	}
	if c.Server.MaxWait <= 0 {
		errs = append(errs, "RUN_MAX_WAIT must be positive")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Lock validation
	if c.Lock.TTL <= 0 {
		errs = append(errs, "LOCK_TTL must be positive")
	} else if c.Lock.RedisURL != "" && c.Lock.TTL < c.Ingest.Timeout {
		errs = append(errs, fmt.Sprintf("LOCK_TTL (%s) must be at least INGEST_TIMEOUT (%s) when LOCK_REDIS_URL is set", c.Lock.TTL, c.Ingest.Timeout))
	}

	// Tracing validation
	switch strings.ToLower(c.Tracing.Exporter) {
	case "none", "stdout":
	default:
		errs = append(errs, fmt.Sprintf("TRACE_EXPORTER (%q) must be one of: none, stdout", c.Tracing.Exporter))
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

var validDrivers = map[string]struct{}{
	"postgres": {}, "postgresql": {}, "pgx": {}, "sqlite": {}, "sqlite3": {},
}

// String returns a safe string representation of the config for logging.
// Connection URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Database: {URL: [MASKED], Driver: %q}, ", c.Database.Driver)
	fmt.Fprintf(&b, "Ingest: {Entity: %q, ComponentID: %d, RulesPath: %q, BatchSize: %d, IDStrategy: %q}, ",
		c.Ingest.Entity, c.Ingest.ComponentID, c.Ingest.RulesPath, c.Ingest.BatchSize, c.Ingest.IDStrategy)
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d, MaxConcurrentRuns: %d}, ",
		c.Server.Host, c.Server.Port, c.Server.MaxConcurrentRuns)
	fmt.Fprintf(&b, "Lock: {RedisURL: %s, TTL: %s}, ", maskURL(c.Lock.RedisURL), c.Lock.TTL)
	fmt.Fprintf(&b, "Tracing: {Exporter: %q}, ", c.Tracing.Exporter)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func maskURL(u string) string {
	if u == "" {
		return `""`
	}
	return "[MASKED]"
}
