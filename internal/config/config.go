// Package config loads process configuration from environment variables.
// Defaults are applied for unset values and the result is validated on
// startup so a misconfigured deployment fails before touching the database.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Ingest   IngestConfig
	Watch    WatchConfig
	Server   ServerConfig
	Security SecurityConfig
	Lock     LockConfig
	Source   SourceConfig
	Tracing  TracingConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds the store connection settings.
type DatabaseConfig struct {
	// URL is the connection string, or a file path for sqlite (required).
	// Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// Driver is postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`
}

// IngestConfig holds pipeline settings.
type IngestConfig struct {
	// Entity is the only entity a run writes.
	Entity string `env:"INGEST_ENTITY" default:"Agencia Nacional de Infraestructura"`

	// ComponentID is the component new regulations are linked to (default: 7)
	ComponentID int64 `env:"INGEST_COMPONENT_ID" default:"7"`

	// RulesPath points at a JSON or YAML rule catalog. Empty uses the
	// built-in catalog.
	RulesPath string `env:"INGEST_RULES_PATH"`

	// BatchSize is the number of rows per INSERT statement (default: 1000)
	BatchSize int `env:"INGEST_BATCH_SIZE" default:"1000"`

	// Timeout bounds a single run (default: 10m)
	Timeout time.Duration `env:"INGEST_TIMEOUT" default:"10m"`

	// IDStrategy is returning or recent (default: returning)
	IDStrategy string `env:"INGEST_ID_STRATEGY" default:"returning"`
}

// WatchConfig holds inbox polling settings.
type WatchConfig struct {
	// InboxDir is scanned for *.json and *.csv batches (default: inbox)
	InboxDir string `env:"WATCH_INBOX_DIR" default:"inbox"`

	// Interval between scans (default: 1m)
	Interval time.Duration `env:"WATCH_INTERVAL" default:"1m"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests. It should be at
	// least INGEST_TIMEOUT so a run is not cut off mid-insert (default: 11m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"11m"`

	// MaxBodyBytes caps a posted batch (default: 32MiB)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"33554432"`

	// MaxConcurrentRuns is the number of runs executing at once (default: 1)
	MaxConcurrentRuns int `env:"RUN_MAX_CONCURRENT" default:"1"`

	// MaxWait is how long a run waits for a slot before 429 (default: 30s)
	MaxWait time.Duration `env:"RUN_MAX_WAIT" default:"30s"`
}

// SecurityConfig holds API authentication settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys.
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies are CIDRs or addresses whose X-Real-IP and
	// X-Forwarded-For headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LockConfig holds the per-entity run lock settings.
type LockConfig struct {
	// RedisURL selects the redis lock. Empty uses an in-process lock.
	RedisURL string `env:"LOCK_REDIS_URL"`

	// TTL expires a lock held by a crashed run. With a redis lock it must
	// cover INGEST_TIMEOUT so a live run never loses the lock (default: 15m)
	TTL time.Duration `env:"LOCK_TTL" default:"15m"`
}

// SourceConfig holds settings for s3:// batch sources.
type SourceConfig struct {
	AWSRegion string `env:"AWS_REGION" default:"us-east-1"`

	// S3Endpoint overrides the S3 endpoint and switches to path-style
	// addressing, for MinIO and similar.
	S3Endpoint string `env:"S3_ENDPOINT"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Exporter is none or stdout (default: none)
	Exporter    string `env:"TRACE_EXPORTER" default:"none"`
	ServiceName string `env:"TRACE_SERVICE_NAME" default:"regingest"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
