package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"TASKSYNC_WORKSPACE":        "sync.workspace",
	"TASKSYNC_WEBHOOK_URL":      "sync.webhook_url",
	"TASKSYNC_RATE_LIMIT_DELAY": "sync.rate_limit_delay",
	"TASKSYNC_PROCESS_ARCHIVED": "sync.process_archived",
	"TASKSYNC_REMOTE_URL":       "remote.base_url",
	// Database settings
	"TASKSYNC_DB_DRIVER":   "database.driver",
	"TASKSYNC_DB_PATH":     "database.path",
	"TASKSYNC_DB_HOST":     "database.postgres.host",
	"TASKSYNC_DB_PORT":     "database.postgres.port",
	"TASKSYNC_DB_NAME":     "database.postgres.database",
	"TASKSYNC_DB_USER":     "database.postgres.user",
	"TASKSYNC_DB_PASSWORD": "database.postgres.password",
	"TASKSYNC_DB_SSL_MODE": "database.postgres.ssl_mode",
	// Logging
	"TASKSYNC_LOG_LEVEL":  "log.level",
	"TASKSYNC_LOG_FORMAT": "log.format",
	"TASKSYNC_LOG_FILE":   "log.file",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns a sorted list of paths that were overridden.
func ApplyEnvVars(tc *TrackedConfig) []string {
	var overridden []string

	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}

		if applyEnvVar(tc.Config, configPath, value) {
			tc.SetSource(configPath, SourceEnv, "")
			overridden = append(overridden, configPath)
		}
	}

	sort.Strings(overridden)
	return overridden
}

// applyEnvVar applies a single environment variable to the config.
// Returns true if the value was applied.
func applyEnvVar(cfg *Config, path string, value string) bool {
	switch path {
	case "sync.workspace":
		cfg.Sync.Workspace = value
	case "sync.webhook_url":
		cfg.Sync.WebhookURL = value
	case "sync.rate_limit_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		cfg.Sync.RateLimitDelay = d
	case "sync.process_archived":
		cfg.Sync.ProcessArchived = parseBool(value)
	case "remote.base_url":
		cfg.Remote.BaseURL = value
	case "database.driver":
		cfg.Database.Driver = value
	case "database.path":
		cfg.Database.Path = value
	case "database.postgres.host":
		cfg.Database.Postgres.Host = value
	case "database.postgres.port":
		v, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		cfg.Database.Postgres.Port = v
	case "database.postgres.database":
		cfg.Database.Postgres.Database = value
	case "database.postgres.user":
		cfg.Database.Postgres.User = value
	case "database.postgres.password":
		cfg.Database.Postgres.Password = value
	case "database.postgres.ssl_mode":
		cfg.Database.Postgres.SSLMode = value
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	case "log.file":
		cfg.Log.File = value
	default:
		return false
	}
	return true
}

// parseBool accepts the usual truthy spellings.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
