package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Engine    EngineConfig
	Session   SessionConfig
	Dispatch  DispatchConfig
	Auth      AuthConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"5000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// DatabaseConfig holds the remote session store configuration.
// Table and column identifiers are configuration, not hard-coded.
type DatabaseConfig struct {
	DSN            string        `envconfig:"DATABASE_URL"`
	Table          string        `envconfig:"SESSION_TABLE" default:"wa_sessions"`
	SessionColumn  string        `envconfig:"SESSION_NAME_COLUMN" default:"session_name"`
	DataColumn     string        `envconfig:"SESSION_DATA_COLUMN" default:"data"`
	UpdatedColumn  string        `envconfig:"SESSION_UPDATED_COLUMN" default:"updated_at"`
	RequestTimeout time.Duration `envconfig:"DB_REQUEST_TIMEOUT" default:"60s"`
	MaxConns       int32         `envconfig:"DB_MAX_CONNS" default:"10"`
}

// EngineConfig holds the browser automation engine configuration.
type EngineConfig struct {
	Address string `envconfig:"ENGINE_ADDR" default:"http://localhost:7300"`
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	DataPath       string        `envconfig:"SESSION_DATA_PATH" default:"/tmp/chatrelay/sessions"`
	BackupInterval time.Duration `envconfig:"BACKUP_INTERVAL" default:"24h"`
	SettleDelay    time.Duration `envconfig:"BACKUP_SETTLE_DELAY" default:"15s"`
	RetryAttempts  int           `envconfig:"RECREATE_MAX_ATTEMPTS" default:"3"`
	RetryBackoff   time.Duration `envconfig:"RECREATE_BACKOFF" default:"2s"`
}

// DispatchConfig holds outbound message dispatch configuration.
type DispatchConfig struct {
	BatchSize   int           `envconfig:"BULK_BATCH_SIZE" default:"5"`
	BatchDelay  time.Duration `envconfig:"BULK_BATCH_DELAY" default:"1s"`
	CountryCode string        `envconfig:"DEFAULT_COUNTRY_CODE" default:"91"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	Secret   string        `envconfig:"SECRET_KEY"`
	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"720h"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "5000",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Table:          "wa_sessions",
			SessionColumn:  "session_name",
			DataColumn:     "data",
			UpdatedColumn:  "updated_at",
			RequestTimeout: 60 * time.Second,
			MaxConns:       10,
		},
		Engine: EngineConfig{
			Address: "http://localhost:7300",
		},
		Session: SessionConfig{
			DataPath:       "/tmp/chatrelay/sessions",
			BackupInterval: 24 * time.Hour,
			SettleDelay:    15 * time.Second,
			RetryAttempts:  3,
			RetryBackoff:   2 * time.Second,
		},
		Dispatch: DispatchConfig{
			BatchSize:   5,
			BatchDelay:  time.Second,
			CountryCode: "91",
		},
		Auth: AuthConfig{
			TokenTTL: 720 * time.Hour,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
