// Package config provides centralized configuration management for the
// server and CLI. It loads configuration from environment variables with
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Sync     SyncConfig
	Backup   BackupConfig
	Alerts   AlertsConfig
	Redis    RedisConfig
	Events   EventsConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout covers reading the whole request, uploads included (default: 2m)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"2m"`

	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"15m"`

	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is how long in-flight syncs get to finish (default: 60s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"60s"`
}

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// DatabaseConfig selects and configures the provider store.
type DatabaseConfig struct {
	// Driver is postgres, sqlite or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for postgres.
	// Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// ConnectTimeout bounds connection retries at startup (default: 30s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"30s"`

	// SQLitePath is the database file for the sqlite driver
	SQLitePath string `env:"SQLITE_PATH" default:"repsync.db"`
}

// SyncConfig tunes synchronization runs.
type SyncConfig struct {
	// Timeout bounds one sync when the caller sets no deadline (default: 10m)
	Timeout time.Duration `env:"SYNC_TIMEOUT" default:"10m"`

	// MaxConcurrent is the number of syncs the server runs at once (default: 4)
	MaxConcurrent int `env:"SYNC_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for a sync slot (default: 30s)
	MaxWaitTime time.Duration `env:"SYNC_MAX_WAIT_TIME" default:"30s"`

	// MaxFileSize is the largest accepted export in bytes (default: 50MB)
	MaxFileSize int64 `env:"SYNC_MAX_FILE_SIZE" default:"52428800"`

	// SummaryTopN caps the errors and warnings printed in summaries (default: 5)
	SummaryTopN int `env:"SYNC_SUMMARY_TOP_N" default:"5"`

	// NormalizeWorkers is the row normalization parallelism; 0 uses GOMAXPROCS
	NormalizeWorkers int `env:"SYNC_NORMALIZE_WORKERS" default:"0"`
}

// BackupConfig selects where pre-sync snapshots are written.
type BackupConfig struct {
	// Driver is fs, memory, s3, minio, or empty to disable backups (default: fs)
	Driver string `env:"BACKUP_DRIVER" default:"fs"`

	Dir string `env:"BACKUP_DIR" default:"backups"`

	Bucket    string `env:"BACKUP_BUCKET"`
	Region    string `env:"BACKUP_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	Endpoint  string `env:"BACKUP_ENDPOINT"`
	AccessKey string `env:"BACKUP_ACCESS_KEY" envAlt:"AWS_ACCESS_KEY_ID"`
	SecretKey string `env:"BACKUP_SECRET_KEY" envAlt:"AWS_SECRET_ACCESS_KEY"`
	UseSSL    bool   `env:"BACKUP_USE_SSL" default:"true"`
	PathStyle bool   `env:"BACKUP_PATH_STYLE" default:"false"`
}

// Alert sink drivers.
const (
	SinkMemory   = "memory"
	SinkPostgres = "postgres"
	SinkRedis    = "redis"
)

// AlertsConfig configures compliance alert generation.
type AlertsConfig struct {
	// Lookahead is how far ahead expiring services are flagged (default: 90 days)
	Lookahead time.Duration `env:"ALERTS_LOOKAHEAD" default:"2160h"`

	// CatalogPath is the YAML reference catalog; empty disables catalog rules
	CatalogPath string `env:"ALERTS_CATALOG_PATH"`

	// Sink is memory, postgres or redis (default: memory)
	Sink string `env:"ALERTS_SINK" default:"memory"`

	// RefreshInterval is how often every organization is re-evaluated;
	// 0 disables the scheduler (default: 6h)
	RefreshInterval time.Duration `env:"ALERTS_REFRESH_INTERVAL" default:"6h"`
}

// RedisConfig is used when ALERTS_SINK=redis.
type RedisConfig struct {
	Addr           string        `env:"REDIS_ADDR" default:"localhost:6379"`
	Password       string        `env:"REDIS_PASSWORD"`
	DB             int           `env:"REDIS_DB" default:"0"`
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX" default:"repsync"`
	TTL            time.Duration `env:"REDIS_ALERT_TTL" default:"0s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" default:"10s"`
}

// EventsConfig enables run events on Kafka when Brokers is set.
type EventsConfig struct {
	Brokers []string `env:"KAFKA_BROKERS"`
	Topic   string   `env:"KAFKA_TOPIC" default:"repsync.runs"`
}

// Enabled reports whether a broker is configured.
func (c EventsConfig) Enabled() bool { return len(c.Brokers) > 0 }

// SecurityConfig holds API authentication settings.
type SecurityConfig struct {
	// RequireAPIKey rejects requests without a valid X-API-Key (default: true)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"true"`

	// APIKeys lists key:actor pairs, comma separated. The actor is recorded
	// as the author of every change made with that key.
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// KeyActors parses APIKeys into a key -> actor map.
func (c SecurityConfig) KeyActors() (map[string]string, error) {
	out := make(map[string]string, len(c.APIKeys))
	for _, entry := range c.APIKeys {
		key, actor, ok := strings.Cut(entry, ":")
		key, actor = strings.TrimSpace(key), strings.TrimSpace(actor)
		if !ok || key == "" || actor == "" {
			return nil, fmt.Errorf("API_KEYS entry %q: want key:actor", maskKey(entry))
		}
		out[key] = actor
	}
	return out, nil
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
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func maskKey(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
