// Package config holds draftsync runtime configuration. Values come from
// defaults, a TOML file, DRAFTSYNC_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config holds configuration for the API and worker.
type Config struct {
	Addr      string
	Local     bool
	LogLevel  string
	LogFormat string

	StoreBackend string
	DynamoTable  string
	RedisAddr    string
	RedisDB      int
	SQLitePath   string
	Retention    time.Duration

	Debounce      time.Duration
	WriteTimeout  time.Duration
	RetryAttempts int
	RetryBase     time.Duration
	RetryMax      time.Duration

	SessionIdleTimeout time.Duration
	SweepInterval      time.Duration

	CleanupQueueURL string

	MetricsEnabled       bool
	MetricsNamespace     string
	MetricsFlushInterval time.Duration
}

// Default returns a Config with default values.
func Default() Config {
	return Config{
		Addr:                 ":8080",
		LogLevel:             "info",
		LogFormat:            "json",
		StoreBackend:         BackendDynamoDB,
		DynamoTable:          "drafts",
		RedisAddr:            "localhost:6379",
		SQLitePath:           "drafts.db",
		Retention:            30 * 24 * time.Hour,
		Debounce:             800 * time.Millisecond,
		WriteTimeout:         5 * time.Second,
		RetryBase:            200 * time.Millisecond,
		RetryMax:             2 * time.Second,
		SessionIdleTimeout:   30 * time.Minute,
		SweepInterval:        time.Minute,
		MetricsNamespace:     "DraftSync",
		MetricsFlushInterval: time.Minute,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendDynamoDB:
		if c.DynamoTable == "" {
			return fmt.Errorf("dynamo-table is required for the %s backend", c.StoreBackend)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis-addr is required for the %s backend", c.StoreBackend)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path is required for the %s backend", c.StoreBackend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must not be negative")
	}
	if c.RetryAttempts > 0 && c.RetryBase <= 0 {
		return fmt.Errorf("retry base must be positive when retries are enabled")
	}
	if c.SessionIdleTimeout <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("session idle timeout and sweep interval must be positive")
	}
	if c.MetricsEnabled && c.MetricsFlushInterval <= 0 {
		return fmt.Errorf("metrics flush interval must be positive")
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// configSetter applies values unless the corresponding flag was set
// explicitly on the command line.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return nil
	}
	*dst = i
	return nil
}

// Accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
