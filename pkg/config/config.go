package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Environment variables honored outside the OMECTL_ prefix.
const (
	EnvSessionDir   = "SESSION_DIR_OVERRIDE"
	EnvUserHome     = "USER_HOME_OVERRIDE"
	EnvNoDeprecated = "NO_DEPRECATED_COMMANDS"
)

// Config represents the omectl configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority, applied by the caller)
//  2. Environment variables (OMECTL_*, plus the legacy overrides above)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Sessions configures the on-disk session store
	Sessions SessionsConfig `mapstructure:"sessions" yaml:"sessions"`

	// Remote configures how servers are contacted
	Remote RemoteConfig `mapstructure:"remote" yaml:"remote"`

	// CLI holds front-end preferences
	CLI CLIConfig `mapstructure:"cli" yaml:"cli"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// SessionsConfig configures the session store.
type SessionsConfig struct {
	// Dir overrides the store directory.
	// Override: SESSION_DIR_OVERRIDE
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`

	// Home replaces the home directory used to derive <home>/.omero/sessions.
	// Override: USER_HOME_OVERRIDE
	Home string `mapstructure:"home" yaml:"home,omitempty"`

	// LockAttempts is how many times a store operation tries the lock.
	// Default: 10
	LockAttempts int `mapstructure:"lock_attempts" validate:"min=1,max=1000" yaml:"lock_attempts"`

	// LockInterval is the pause between lock attempts.
	// Default: 100ms
	LockInterval time.Duration `mapstructure:"lock_interval" validate:"gt=0" yaml:"lock_interval"`
}

// RemoteConfig configures server access.
type RemoteConfig struct {
	// Timeout bounds each request to a server.
	// Default: 30s
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`

	// Scheme is used for servers given without one.
	// Default: http
	Scheme string `mapstructure:"scheme" validate:"oneof=http https" yaml:"scheme"`

	// DefaultPort is used when neither the server nor --port names one.
	// Default: 4064
	DefaultPort int `mapstructure:"default_port" validate:"min=1,max=65535" yaml:"default_port"`
}

// CLIConfig holds front-end preferences.
type CLIConfig struct {
	// Output is the default output format of listing commands.
	Output string `mapstructure:"output" validate:"oneof=table json yaml" yaml:"output"`

	// NoDeprecated hides deprecated command aliases.
	// Override: NO_DEPRECATED_COMMANDS (any value)
	NoDeprecated bool `mapstructure:"no_deprecated" yaml:"no_deprecated"`

	// HistoryFile stores interactive shell history. Empty disables history.
	HistoryFile string `mapstructure:"history_file" yaml:"history_file,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing configuration file is not an error: defaults and environment
// variables still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, ok := os.LookupEnv(EnvNoDeprecated); ok {
		cfg.CLI.NoDeprecated = true
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use OMECTL_ prefix and underscores
	// Example: OMECTL_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("OMECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about.
	setViperDefaults(v, GetDefaultConfig())

	_ = v.BindEnv("sessions.dir", "OMECTL_SESSIONS_DIR", EnvSessionDir)
	_ = v.BindEnv("sessions.home", "OMECTL_SESSIONS_HOME", EnvUserHome)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/omectl/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
	v.SetDefault("sessions.dir", cfg.Sessions.Dir)
	v.SetDefault("sessions.home", cfg.Sessions.Home)
	v.SetDefault("sessions.lock_attempts", cfg.Sessions.LockAttempts)
	v.SetDefault("sessions.lock_interval", cfg.Sessions.LockInterval.String())
	v.SetDefault("remote.timeout", cfg.Remote.Timeout.String())
	v.SetDefault("remote.scheme", cfg.Remote.Scheme)
	v.SetDefault("remote.default_port", cfg.Remote.DefaultPort)
	v.SetDefault("cli.output", cfg.CLI.Output)
	v.SetDefault("cli.no_deprecated", cfg.CLI.NoDeprecated)
	v.SetDefault("cli.history_file", cfg.CLI.HistoryFile)
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Explicit config file that doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "100ms", "30s", "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "omectl")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "omectl")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
