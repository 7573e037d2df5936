package config

import (
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Addr      string `toml:"addr"`
	Local     *bool  `toml:"local"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	Store    StoreFileConfig    `toml:"store"`
	Autosave AutosaveFileConfig `toml:"autosave"`
	Sessions SessionsFileConfig `toml:"sessions"`

	CleanupQueueURL string `toml:"cleanup_queue_url"`

	Metrics MetricsFileConfig `toml:"metrics"`
}

// StoreFileConfig is the [store] table.
type StoreFileConfig struct {
	Backend     string `toml:"backend"`
	DynamoTable string `toml:"dynamo_table"`
	RedisAddr   string `toml:"redis_addr"`
	RedisDB     int    `toml:"redis_db"`
	SQLitePath  string `toml:"sqlite_path"`
	Retention   string `toml:"retention"`
}

// AutosaveFileConfig is the [autosave] table.
type AutosaveFileConfig struct {
	Debounce      string `toml:"debounce"`
	WriteTimeout  string `toml:"write_timeout"`
	RetryAttempts int    `toml:"retry_attempts"`
	RetryBase     string `toml:"retry_base"`
	RetryMax      string `toml:"retry_max"`
}

// SessionsFileConfig is the [sessions] table.
type SessionsFileConfig struct {
	IdleTimeout   string `toml:"idle_timeout"`
	SweepInterval string `toml:"sweep_interval"`
}

// MetricsFileConfig is the [metrics] table.
type MetricsFileConfig struct {
	Enabled       *bool  `toml:"enabled"`
	Namespace     string `toml:"namespace"`
	FlushInterval string `toml:"flush_interval"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("addr", fc.Addr, &cfg.Addr)
	s.setBool("local", fc.Local, &cfg.Local)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	s.setString("store", fc.Store.Backend, &cfg.StoreBackend)
	s.setString("dynamo-table", fc.Store.DynamoTable, &cfg.DynamoTable)
	s.setString("redis-addr", fc.Store.RedisAddr, &cfg.RedisAddr)
	s.setInt("redis-db", fc.Store.RedisDB, &cfg.RedisDB)
	s.setString("sqlite-path", fc.Store.SQLitePath, &cfg.SQLitePath)
	s.setString("cleanup-queue-url", fc.CleanupQueueURL, &cfg.CleanupQueueURL)
	s.setInt("retry-attempts", fc.Autosave.RetryAttempts, &cfg.RetryAttempts)
	s.setBool("metrics", fc.Metrics.Enabled, &cfg.MetricsEnabled)
	s.setString("metrics-namespace", fc.Metrics.Namespace, &cfg.MetricsNamespace)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"retention", fc.Store.Retention, &cfg.Retention},
		{"debounce", fc.Autosave.Debounce, &cfg.Debounce},
		{"write-timeout", fc.Autosave.WriteTimeout, &cfg.WriteTimeout},
		{"retry-base", fc.Autosave.RetryBase, &cfg.RetryBase},
		{"retry-max", fc.Autosave.RetryMax, &cfg.RetryMax},
		{"session-idle-timeout", fc.Sessions.IdleTimeout, &cfg.SessionIdleTimeout},
		{"sweep-interval", fc.Sessions.SweepInterval, &cfg.SweepInterval},
		{"metrics-flush-interval", fc.Metrics.FlushInterval, &cfg.MetricsFlushInterval},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
