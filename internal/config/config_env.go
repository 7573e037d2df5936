package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "DRAFTSYNC_"

// EnvName returns the environment variable for a flag, e.g.
// "dynamo-table" -> "DRAFTSYNC_DYNAMO_TABLE".
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// LoadDotEnv loads variables from path into the process environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ApplyEnvConfig applies DRAFTSYNC_* environment variables to cfg.
// It respects flags that have been explicitly set (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(flag string) string { return os.Getenv(EnvName(flag)) }

	s.setString("addr", env("addr"), &cfg.Addr)
	s.setBoolFromString("local", env("local"), &cfg.Local)
	// RUN_LOCAL predates the prefixed variables and is still honoured.
	s.setBoolFromString("local", os.Getenv("RUN_LOCAL"), &cfg.Local)
	s.setString("log-level", env("log-level"), &cfg.LogLevel)
	s.setString("log-format", env("log-format"), &cfg.LogFormat)

	s.setString("store", env("store"), &cfg.StoreBackend)
	s.setString("dynamo-table", env("dynamo-table"), &cfg.DynamoTable)
	s.setString("redis-addr", env("redis-addr"), &cfg.RedisAddr)
	s.setString("sqlite-path", env("sqlite-path"), &cfg.SQLitePath)
	s.setString("cleanup-queue-url", env("cleanup-queue-url"), &cfg.CleanupQueueURL)
	s.setString("metrics-namespace", env("metrics-namespace"), &cfg.MetricsNamespace)
	s.setBoolFromString("metrics", env("metrics"), &cfg.MetricsEnabled)

	if err := s.setIntFromString("redis-db", env("redis-db"), &cfg.RedisDB); err != nil {
		return err
	}
	if err := s.setIntFromString("retry-attempts", env("retry-attempts"), &cfg.RetryAttempts); err != nil {
		return err
	}

	durations := map[string]*time.Duration{
		"retention":              &cfg.Retention,
		"debounce":               &cfg.Debounce,
		"write-timeout":          &cfg.WriteTimeout,
		"retry-base":             &cfg.RetryBase,
		"retry-max":              &cfg.RetryMax,
		"session-idle-timeout":   &cfg.SessionIdleTimeout,
		"sweep-interval":         &cfg.SweepInterval,
		"metrics-flush-interval": &cfg.MetricsFlushInterval,
	}
	for flag, dst := range durations {
		if err := s.setDuration(flag, env(flag), dst); err != nil {
			return err
		}
	}
	return nil
}
