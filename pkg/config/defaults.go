package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "") are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applySessionsDefaults(&cfg.Sessions)
	applyRemoteDefaults(&cfg.Remote)
	applyCLIDefaults(&cfg.CLI)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
// A command line tool stays quiet on stderr unless asked otherwise.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "WARN"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applySessionsDefaults(cfg *SessionsConfig) {
	if cfg.LockAttempts == 0 {
		cfg.LockAttempts = 10
	}
	if cfg.LockInterval == 0 {
		cfg.LockInterval = 100 * time.Millisecond
	}
}

func applyRemoteDefaults(cfg *RemoteConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	cfg.Scheme = strings.ToLower(cfg.Scheme)
	if cfg.DefaultPort == 0 {
		cfg.DefaultPort = 4064
	}
}

func applyCLIDefaults(cfg *CLIConfig) {
	if cfg.Output == "" {
		cfg.Output = "table"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
