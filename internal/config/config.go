// Package config provides configuration management for tasksync.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// Dir is the tasksync configuration directory
	Dir = ".tasksync"
	// DefaultTokenEnvVar holds the remote API token unless overridden.
	DefaultTokenEnvVar = "TASKSYNC_TOKEN"
)

// RemoteConfig configures the remote API client.
type RemoteConfig struct {
	// BaseURL is the API root, e.g. https://app.asana.com/api/1.0
	BaseURL string `yaml:"base_url"`

	// TokenEnvVar names the environment variable holding the access token.
	// The token itself is never read from a config file.
	TokenEnvVar string `yaml:"token_env_var"`

	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// GetTokenEnvVar returns the configured token env var or the default.
func (r RemoteConfig) GetTokenEnvVar() string {
	if r.TokenEnvVar != "" {
		return r.TokenEnvVar
	}
	return DefaultTokenEnvVar
}

// SyncConfig configures the synchronization engine.
type SyncConfig struct {
	// Workspace is a default workspace selector appended to every run.
	Workspace string `yaml:"workspace"`

	// WebhookURL is the push-notification callback. Empty disables
	// webhook reconciliation entirely.
	WebhookURL string `yaml:"webhook_url"`

	// RateLimitDelay is the fixed pause after every remote call in a loop.
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"`

	// ProcessArchived syncs tasks of archived projects too.
	ProcessArchived bool `yaml:"process_archived"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN builds a PostgreSQL connection URL.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	if p.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(p.SSLMode)
	}
	return u.String()
}

// DatabaseConfig selects and configures the local mirror store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Config represents the tasksync configuration.
type Config struct {
	// Version is the config file version
	Version int `yaml:"version"`

	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Remote: RemoteConfig{
			BaseURL:           "https://app.asana.com/api/1.0",
			TokenEnvVar:       DefaultTokenEnvVar,
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			RequestsPerMinute: 150,
		},
		Sync: SyncConfig{
			RateLimitDelay: 500 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(Dir, "mirror.db"),
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "tasksync",
				User:     "tasksync",
				SSLMode:  "disable",
			},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Sync.RateLimitDelay < 0 {
		return syncerrors.ErrConfigInvalid("sync.rate_limit_delay", "must not be negative")
	}
	if c.Remote.MaxRetries < 0 {
		return syncerrors.ErrConfigInvalid("remote.max_retries", "must not be negative")
	}
	if c.Remote.RequestsPerMinute < 0 {
		return syncerrors.ErrConfigInvalid("remote.requests_per_minute", "must not be negative")
	}
	if c.Remote.BaseURL == "" {
		return syncerrors.ErrConfigMissing("remote.base_url")
	}
	if c.Sync.WebhookURL != "" {
		u, err := url.Parse(c.Sync.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return syncerrors.ErrConfigInvalid("sync.webhook_url", "must be an absolute http(s) URL")
		}
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
		if c.Database.Path == "" {
			return syncerrors.ErrConfigMissing("database.path")
		}
	case "postgres", "postgresql", "pg":
	default:
		return syncerrors.ErrConfigInvalid("database.driver", fmt.Sprintf("unknown driver %q (want sqlite or postgres)", c.Database.Driver))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return syncerrors.ErrConfigInvalid("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return syncerrors.ErrConfigInvalid("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}
	return nil
}

// Load loads the configuration from every source without tracking.
func Load(explicitPath string) (*Config, error) {
	tc, err := LoadWithSources(explicitPath)
	if err != nil {
		return nil, err
	}
	return tc.Config, nil
}

// SaveTo writes the configuration as YAML to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Init writes a default project config unless one exists.
func Init(force bool) (string, error) {
	path := filepath.Join(Dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	return path, Default().SaveTo(path)
}
