// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// History store drivers.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultMaxUploadBytes caps uploaded .eml files.
const DefaultMaxUploadBytes = 10 << 20

// Config holds all configuration for the audit service.
type Config struct {
	// Server
	Port           int
	MaxUploadBytes int64
	AllowedOrigins []string

	LogLevel string

	// Redis (optional; empty URL disables the cache and queue)
	RedisURL   string
	AuditQueue string
	CacheTTL   time.Duration

	// History
	HistoryDriver string
	HistoryDSN    string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port           int      `yaml:"port"`
		MaxUploadBytes int64    `yaml:"max_upload_bytes"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		URL      string `yaml:"url"`
		Queue    string `yaml:"queue"`
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"redis"`
	History struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"history"`
}

// Load reads configuration from CONFIG_PATH (default config.yaml).
func Load() (*Config, error) {
	return LoadFile(envOrDefault("CONFIG_PATH", "config.yaml"))
}

// LoadFile reads configuration from path with ${VAR} expansion, then applies
// environment overrides. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	var raw rawConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	yamlTTL := time.Duration(0)
	if raw.Redis.CacheTTL != "" {
		yamlTTL, err = time.ParseDuration(raw.Redis.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("parse redis.cache_ttl: %w", err)
		}
	}

	cfg := &Config{
		Port:           envOrDefaultInt("PORT", firstPositive(raw.Server.Port, 8000)),
		MaxUploadBytes: int64(envOrDefaultInt("MAX_UPLOAD_BYTES", int(firstPositive64(raw.Server.MaxUploadBytes, DefaultMaxUploadBytes)))),
		AllowedOrigins: raw.Server.AllowedOrigins,
		LogLevel:       envOrDefault("LOG_LEVEL", firstNonEmpty(raw.Log.Level, "info")),
		RedisURL:       envOrDefault("REDIS_URL", raw.Redis.URL),
		AuditQueue:     envOrDefault("AUDIT_QUEUE", firstNonEmpty(raw.Redis.Queue, "audits")),
		CacheTTL:       envOrDefaultDuration("CACHE_TTL", firstPositiveDuration(yamlTTL, 24*time.Hour)),
		HistoryDriver:  strings.ToLower(envOrDefault("HISTORY_DRIVER", firstNonEmpty(raw.History.Driver, DriverNone))),
		HistoryDSN:     envOrDefault("DATABASE_URL", raw.History.DSN),
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.HistoryDriver {
	case DriverNone:
	case DriverPostgres, DriverSQLite:
		if c.HistoryDSN == "" {
			return fmt.Errorf("history driver %q requires a DSN (DATABASE_URL)", c.HistoryDriver)
		}
	default:
		return fmt.Errorf("unknown history driver %q", c.HistoryDriver)
	}
	return nil
}

// ParseLevel maps debug|info|warn|error onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func firstPositive64(v, fallback int64) int64 {
	if v > 0 {
		return v
	}
	return fallback
}

func firstPositiveDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
