// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package config holds all application configuration for Courbe.
//
// Configuration is loaded in three layers with clear precedence
// (highest wins): environment variables > optional YAML config file >
// built-in defaults. See Load.
//
// The Config struct is immutable after Load and safe for concurrent reads.
package config

import "time"

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Storage   StorageConfig   `koanf:"storage"`
	EDA       EDAConfig       `koanf:"eda"`
	Tasks     TasksConfig     `koanf:"tasks"`
	Sandbox   SandboxConfig   `koanf:"sandbox"`
	Usage     UsageConfig     `koanf:"usage"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment variables:
//   - COURBE_PORT, COURBE_HOST, COURBE_ENVIRONMENT
//   - CORS_ORIGINS: comma-separated allow-list; must be HTTPS origins when
//     Environment is "production"
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	ReadTimeout time.Duration `koanf:"read_timeout"`
	// WriteTimeout must stay generous: recording uploads run to 1.5 GiB.
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
	// MaxBodyBytes caps request entities (default 1.5 GiB).
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
	// Environment is "development" or "production".
	Environment string   `koanf:"environment"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// DatabaseConfig holds SQLite settings. One database file carries the
// users, sessions, stored_files and user_quotas tables; the file-store
// foreign keys cascade from users, so the tables cannot be split.
type DatabaseConfig struct {
	Path string `koanf:"path"`
	// BusyTimeout is how long a write waits on a locked database.
	BusyTimeout time.Duration `koanf:"busy_timeout"`
}

// AuthConfig holds identity and session settings.
//
// Environment variables:
//   - AUTH_SECRET_KEY: required in production
//   - AUTH_TOKEN_EXPIRY_HOURS: session lifetime (default 168 = 7 days)
type AuthConfig struct {
	SecretKey        string `koanf:"secret_key"`
	TokenExpiryHours int    `koanf:"token_expiry_hours"`

	// Argon2id parameters. The defaults target ~100 ms per verify.
	Argon2Memory  uint32 `koanf:"argon2_memory"`
	Argon2Time    uint32 `koanf:"argon2_time"`
	Argon2Threads uint8  `koanf:"argon2_threads"`

	// SessionSweepInterval drives the background expired-session sweep.
	SessionSweepInterval time.Duration `koanf:"session_sweep_interval"`
}

// RateLimitConfig holds the sliding-window login limiter policy.
type RateLimitConfig struct {
	Window      time.Duration `koanf:"window"`
	MaxAttempts int           `koanf:"max_attempts"`
	Lockout     time.Duration `koanf:"lockout"`
}

// StorageConfig holds the per-user file store settings.
type StorageConfig struct {
	// Root is the directory holding default/ and users/ trees.
	Root string `koanf:"root"`
	// DefaultQuotaBytes is the per-user byte budget (default 5 GiB).
	DefaultQuotaBytes int64 `koanf:"default_quota_bytes"`
	MaxFiles          int   `koanf:"max_files"`
	MaxPerCategory    int   `koanf:"max_per_category"`
}

// EDAConfig holds lazy recording-session settings.
type EDAConfig struct {
	SessionTTL  time.Duration `koanf:"session_ttl"`
	MaxSessions int           `koanf:"max_sessions"`
	// ChannelDenyList filters auxiliary channels out of signal listings.
	// Matched case-insensitively as substrings or prefixes.
	ChannelDenyList []string `koanf:"channel_deny_list"`
	// MaxViewSignals caps signals per view request.
	MaxViewSignals int `koanf:"max_view_signals"`
}

// TasksConfig holds the convert/concatenate pipeline settings.
type TasksConfig struct {
	// Dir is where task inputs and outputs live.
	Dir string `koanf:"dir"`
	// Parallelism bounds concurrently running tasks; 0 means GOMAXPROCS.
	Parallelism     int           `koanf:"parallelism"`
	JanitorInterval time.Duration `koanf:"janitor_interval"`
	ConvertMaxAge   time.Duration `koanf:"convert_max_age"`
	ConcatMaxAge    time.Duration `koanf:"concat_max_age"`
	// DefaultRaster is the uniform-resample step in seconds for the
	// manual conversion fallback.
	DefaultRaster float64 `koanf:"default_raster"`
	CSVChunkRows  int     `koanf:"csv_chunk_rows"`
}

// SandboxConfig holds analysis-sandbox settings.
//
// The static validator caps are deliberately configuration, not constants:
// operators running untrusted multi-tenant workloads tighten them.
type SandboxConfig struct {
	PythonPath     string        `koanf:"python_path"`
	WallTimeout    time.Duration `koanf:"wall_timeout"`
	MemoryLimit    int64         `koanf:"memory_limit"`
	MaxCodeLength  int           `koanf:"max_code_length"`
	MaxNodes       int           `koanf:"max_nodes"`
	MaxStringChars int           `koanf:"max_string_chars"`
}

// UsageConfig holds the anonymized usage-metrics collector settings.
//
// Environment variables:
//   - METRICS_IP_SALT: process-wide salt for one-way IP hashing
type UsageConfig struct {
	DataDir       string        `koanf:"data_dir"`
	IPSalt        string        `koanf:"ip_salt"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	BufferCap     int           `koanf:"buffer_cap"`
	RetentionDays int           `koanf:"retention_days"`
	SessionIdle   time.Duration `koanf:"session_idle"`
	ReservoirSize int           `koanf:"reservoir_size"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. These are
// layered under the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         5000,
			Host:         "0.0.0.0",
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1536 * 1024 * 1024, // 1.5 GiB
			Environment:  "development",
			CORSOrigins:  []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Path:        "/data/courbe/users.db",
			BusyTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			SecretKey:            "",
			TokenExpiryHours:     168,
			Argon2Memory:         64 * 1024, // KiB
			Argon2Time:           3,
			Argon2Threads:        2,
			SessionSweepInterval: time.Hour,
		},
		RateLimit: RateLimitConfig{
			Window:      900 * time.Second,
			MaxAttempts: 5,
			Lockout:     1800 * time.Second,
		},
		Storage: StorageConfig{
			Root:              "/data/courbe/storage",
			DefaultQuotaBytes: 5 * 1024 * 1024 * 1024, // 5 GiB
			MaxFiles:          1000,
			MaxPerCategory:    200,
		},
		EDA: EDAConfig{
			SessionTTL:      time.Hour,
			MaxSessions:     50,
			ChannelDenyList: []string{"time", "timestamp", "t_", "CAN_DataFrame"},
			MaxViewSignals:  50,
		},
		Tasks: TasksConfig{
			Dir:             "/data/courbe/tasks",
			Parallelism:     0,
			JanitorInterval: 10 * time.Minute,
			ConvertMaxAge:   24 * time.Hour,
			ConcatMaxAge:    time.Hour,
			DefaultRaster:   0.01,
			CSVChunkRows:    100_000,
		},
		Sandbox: SandboxConfig{
			PythonPath:     "python3",
			WallTimeout:    30 * time.Second,
			MemoryLimit:    256 * 1024 * 1024,
			MaxCodeLength:  500_000,
			MaxNodes:       10_000,
			MaxStringChars: 10_000,
		},
		Usage: UsageConfig{
			DataDir:       "/data/courbe/metrics",
			IPSalt:        "",
			FlushInterval: 5 * time.Minute,
			BufferCap:     1000,
			RetentionDays: 30,
			SessionIdle:   30 * time.Minute,
			ReservoirSize: 500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
