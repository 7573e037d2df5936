package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// BindFlags registers a flag for every Config field, defaulting to the
// current values in cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address for local runs")
	fs.BoolVar(&cfg.Local, "local", cfg.Local, "serve HTTP directly instead of running as a Lambda handler")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json, console)")

	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "draft store backend (dynamodb, redis, sqlite, memory)")
	fs.StringVar(&cfg.DynamoTable, "dynamo-table", cfg.DynamoTable, "DynamoDB drafts table")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	fs.DurationVar(&cfg.Retention, "retention", cfg.Retention, "how long an untouched draft is kept")

	fs.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "quiet period before a draft is written")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "timeout for a single store call")
	fs.IntVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "extra attempts for a failed draft write (0 disables)")
	fs.DurationVar(&cfg.RetryBase, "retry-base", cfg.RetryBase, "first retry delay")
	fs.DurationVar(&cfg.RetryMax, "retry-max", cfg.RetryMax, "maximum retry delay")

	fs.DurationVar(&cfg.SessionIdleTimeout, "session-idle-timeout", cfg.SessionIdleTimeout, "dispose sessions idle for this long")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "how often idle sessions are swept")

	fs.StringVar(&cfg.CleanupQueueURL, "cleanup-queue-url", cfg.CleanupQueueURL, "SQS queue for post-submit draft cleanup")

	fs.BoolVar(&cfg.MetricsEnabled, "metrics", cfg.MetricsEnabled, "publish store metrics to CloudWatch")
	fs.StringVar(&cfg.MetricsNamespace, "metrics-namespace", cfg.MetricsNamespace, "CloudWatch namespace")
	fs.DurationVar(&cfg.MetricsFlushInterval, "metrics-flush-interval", cfg.MetricsFlushInterval, "CloudWatch flush interval")
}

// Changed returns the names of flags set explicitly on the command line.
func Changed(fs *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// Load layers the config file (if path is non-empty and exists) and the
// environment under the flags already parsed into cfg, then validates.
func Load(cfg *Config, fs *pflag.FlagSet, path string) error {
	changed := Changed(fs)

	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if err := ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}
