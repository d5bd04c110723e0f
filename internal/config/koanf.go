// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/courbe/config.yaml",
	"/etc/courbe/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using koanf with layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches CONFIG_PATH then the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"eda.channel_deny_list",
}

// processSliceFields converts comma-separated env strings to slices for
// the known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped, so random environment
// content cannot pollute the configuration.
//
// Examples:
//   - AUTH_SECRET_KEY -> auth.secret_key
//   - AUTH_TOKEN_EXPIRY_HOURS -> auth.token_expiry_hours
//   - CORS_ORIGINS -> server.cors_origins
//   - METRICS_IP_SALT -> usage.ip_salt
//   - COURBE_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"courbe_port":           "server.port",
		"courbe_host":           "server.host",
		"courbe_read_timeout":   "server.read_timeout",
		"courbe_write_timeout":  "server.write_timeout",
		"courbe_idle_timeout":   "server.idle_timeout",
		"courbe_max_body_bytes": "server.max_body_bytes",
		"courbe_environment":    "server.environment",
		"environment":           "server.environment",
		"cors_origins":          "server.cors_origins",

		// Database
		"database_path":         "database.path",
		"database_busy_timeout": "database.busy_timeout",

		// Auth
		"auth_secret_key":         "auth.secret_key",
		"auth_token_expiry_hours": "auth.token_expiry_hours",
		"auth_argon2_memory":      "auth.argon2_memory",
		"auth_argon2_time":        "auth.argon2_time",
		"auth_argon2_threads":     "auth.argon2_threads",
		"auth_session_sweep":      "auth.session_sweep_interval",

		// Rate limiter
		"rate_limit_window":       "rate_limit.window",
		"rate_limit_max_attempts": "rate_limit.max_attempts",
		"rate_limit_lockout":      "rate_limit.lockout",

		// Storage
		"storage_root":             "storage.root",
		"storage_default_quota":    "storage.default_quota_bytes",
		"storage_max_files":        "storage.max_files",
		"storage_max_per_category": "storage.max_per_category",

		// EDA sessions
		"eda_session_ttl":       "eda.session_ttl",
		"eda_max_sessions":      "eda.max_sessions",
		"eda_channel_deny_list": "eda.channel_deny_list",
		"eda_max_view_signals":  "eda.max_view_signals",

		// Task pipeline
		"tasks_dir":              "tasks.dir",
		"tasks_parallelism":      "tasks.parallelism",
		"tasks_janitor_interval": "tasks.janitor_interval",
		"tasks_convert_max_age":  "tasks.convert_max_age",
		"tasks_concat_max_age":   "tasks.concat_max_age",
		"tasks_default_raster":   "tasks.default_raster",
		"tasks_csv_chunk_rows":   "tasks.csv_chunk_rows",

		// Sandbox
		"sandbox_python_path":      "sandbox.python_path",
		"sandbox_wall_timeout":     "sandbox.wall_timeout",
		"sandbox_memory_limit":     "sandbox.memory_limit",
		"sandbox_max_code_length":  "sandbox.max_code_length",
		"sandbox_max_nodes":        "sandbox.max_nodes",
		"sandbox_max_string_chars": "sandbox.max_string_chars",

		// Usage metrics
		"metrics_data_dir":       "usage.data_dir",
		"metrics_ip_salt":        "usage.ip_salt",
		"metrics_flush_interval": "usage.flush_interval",
		"metrics_buffer_cap":     "usage.buffer_cap",
		"metrics_retention_days": "usage.retention_days",
		"metrics_session_idle":   "usage.session_idle",
		"metrics_reservoir_size": "usage.reservoir_size",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// WatchConfigFile sets up a file watcher for hot-reload. The caller is
// responsible for mutex protection around reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
