package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadWithSources loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.tasksync/config.yaml) - optional
//  3. Project config (.tasksync/config.yaml) - optional
//  4. Explicit config file (--config) - required when given
//  5. Environment variables (TASKSYNC_*)
func LoadWithSources(explicitPath string) (*TrackedConfig, error) {
	return LoadWithSourcesFrom(".", explicitPath)
}

// LoadWithSourcesFrom loads configuration treating projectDir as the
// directory holding .tasksync/.
func LoadWithSourcesFrom(projectDir, explicitPath string) (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	// 2. User config
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, Dir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	// 3. Project config
	projectPath := filepath.Join(projectDir, Dir, ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(tc, projectPath, SourceProject); err != nil {
			return nil, err // Project config errors are fatal
		}
	}

	// 4. Explicit config
	if explicitPath != "" {
		if err := mergeFromFile(tc, explicitPath, SourceFile); err != nil {
			return nil, err
		}
	}

	// 5. Environment variables
	ApplyEnvVars(tc)

	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

// mergeFromFile merges configuration from a file into tc.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// Parse YAML into a map to track which fields are set
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	// Decoding onto the merged config only overwrites keys present in the file.
	if err := yaml.Unmarshal(data, tc.Config); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for _, p := range flattenKeys("", raw) {
		tc.SetSource(p, source, path)
	}
	return nil
}

// flattenKeys returns the dotted leaf paths set in a decoded YAML map.
func flattenKeys(prefix string, raw map[string]any) []string {
	var paths []string
	for k, v := range raw {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			paths = append(paths, flattenKeys(p, nested)...)
			continue
		}
		paths = append(paths, p)
	}
	return paths
}
