// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateEDA(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}
	if err := c.validateSandbox(); err != nil {
		return err
	}
	return c.validateUsage()
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("COURBE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("COURBE_MAX_BODY_BYTES must be positive")
	}
	env := strings.ToLower(c.Server.Environment)
	if env != "development" && env != "production" {
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Server.Environment)
	}
	return c.validateCORSOrigins()
}

// validateCORSOrigins enforces explicit origins; wildcard and plain-HTTP
// origins are rejected in production.
func (c *Config) validateCORSOrigins() error {
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			if c.IsProduction() {
				return fmt.Errorf("CORS_ORIGINS must not contain a wildcard in production")
			}
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS entry %q is not a valid origin", origin)
		}
		if c.IsProduction() && u.Scheme != "https" {
			return fmt.Errorf("CORS_ORIGINS entry %q must use https in production", origin)
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("DATABASE_BUSY_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.IsProduction() && c.Auth.SecretKey == "" {
		return fmt.Errorf("AUTH_SECRET_KEY is required in production")
	}
	if c.Auth.SecretKey != "" && len(c.Auth.SecretKey) < 32 {
		return fmt.Errorf("AUTH_SECRET_KEY must be at least 32 characters")
	}
	if c.Auth.TokenExpiryHours < 1 || c.Auth.TokenExpiryHours > 8760 {
		return fmt.Errorf("AUTH_TOKEN_EXPIRY_HOURS must be between 1 and 8760, got %d", c.Auth.TokenExpiryHours)
	}
	if c.Auth.Argon2Memory < 8*1024 {
		return fmt.Errorf("AUTH_ARGON2_MEMORY must be at least 8192 KiB")
	}
	if c.Auth.Argon2Time < 1 {
		return fmt.Errorf("AUTH_ARGON2_TIME must be at least 1")
	}
	if c.Auth.Argon2Threads < 1 {
		return fmt.Errorf("AUTH_ARGON2_THREADS must be at least 1")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimit.MaxAttempts < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_ATTEMPTS must be at least 1")
	}
	if c.RateLimit.Lockout <= 0 {
		return fmt.Errorf("RATE_LIMIT_LOCKOUT must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("STORAGE_ROOT must not be empty")
	}
	if c.Storage.DefaultQuotaBytes <= 0 {
		return fmt.Errorf("STORAGE_DEFAULT_QUOTA must be positive")
	}
	if c.Storage.MaxFiles < 1 {
		return fmt.Errorf("STORAGE_MAX_FILES must be at least 1")
	}
	if c.Storage.MaxPerCategory < 1 {
		return fmt.Errorf("STORAGE_MAX_PER_CATEGORY must be at least 1")
	}
	return nil
}

func (c *Config) validateEDA() error {
	if c.EDA.SessionTTL <= 0 {
		return fmt.Errorf("EDA_SESSION_TTL must be positive")
	}
	if c.EDA.MaxSessions < 1 {
		return fmt.Errorf("EDA_MAX_SESSIONS must be at least 1")
	}
	if c.EDA.MaxViewSignals < 1 {
		return fmt.Errorf("EDA_MAX_VIEW_SIGNALS must be at least 1")
	}
	return nil
}

func (c *Config) validateTasks() error {
	if c.Tasks.Dir == "" {
		return fmt.Errorf("TASKS_DIR must not be empty")
	}
	if c.Tasks.Parallelism < 0 {
		return fmt.Errorf("TASKS_PARALLELISM must not be negative")
	}
	if c.Tasks.JanitorInterval <= 0 {
		return fmt.Errorf("TASKS_JANITOR_INTERVAL must be positive")
	}
	if c.Tasks.DefaultRaster <= 0 {
		return fmt.Errorf("TASKS_DEFAULT_RASTER must be positive")
	}
	if c.Tasks.CSVChunkRows < 1 {
		return fmt.Errorf("TASKS_CSV_CHUNK_ROWS must be at least 1")
	}
	return nil
}

func (c *Config) validateSandbox() error {
	if c.Sandbox.PythonPath == "" {
		return fmt.Errorf("SANDBOX_PYTHON_PATH must not be empty")
	}
	if c.Sandbox.WallTimeout <= 0 {
		return fmt.Errorf("SANDBOX_WALL_TIMEOUT must be positive")
	}
	if c.Sandbox.MemoryLimit < 16*1024*1024 {
		return fmt.Errorf("SANDBOX_MEMORY_LIMIT must be at least 16 MiB")
	}
	if c.Sandbox.MaxCodeLength < 1 {
		return fmt.Errorf("SANDBOX_MAX_CODE_LENGTH must be at least 1")
	}
	if c.Sandbox.MaxNodes < 1 {
		return fmt.Errorf("SANDBOX_MAX_NODES must be at least 1")
	}
	return nil
}

func (c *Config) validateUsage() error {
	if c.Usage.DataDir == "" {
		return fmt.Errorf("METRICS_DATA_DIR must not be empty")
	}
	if c.IsProduction() && c.Usage.IPSalt == "" {
		return fmt.Errorf("METRICS_IP_SALT is required in production")
	}
	if c.Usage.FlushInterval <= 0 {
		return fmt.Errorf("METRICS_FLUSH_INTERVAL must be positive")
	}
	if c.Usage.BufferCap < 1 {
		return fmt.Errorf("METRICS_BUFFER_CAP must be at least 1")
	}
	if c.Usage.RetentionDays < 1 {
		return fmt.Errorf("METRICS_RETENTION_DAYS must be at least 1")
	}
	if c.Usage.ReservoirSize < 1 {
		return fmt.Errorf("METRICS_RESERVOIR_SIZE must be at least 1")
	}
	return nil
}
