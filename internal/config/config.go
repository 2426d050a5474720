// Package config loads terminal configuration from file, environment
// and defaults via viper.
//
// Lookup order: explicit --config path, then lavamatic.yaml in the data
// directory, then LAVAMATIC_* environment variables, then defaults. A
// missing config file is fine; the terminal runs on defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved terminal configuration.
type Config struct {
	// TerminalID identifies this device in synced records.
	TerminalID string `mapstructure:"terminal_id"`

	// DataDir holds the local database, cache and logs.
	DataDir string `mapstructure:"data_dir"`

	// RemoteURL is the base URL of the authoritative store. Empty means
	// the terminal runs local-only.
	RemoteURL string `mapstructure:"remote_url"`

	// RemoteAPIKey authenticates against the remote store.
	RemoteAPIKey string `mapstructure:"remote_api_key"`

	// SyncInterval is how often the daemon runs a timed sync pass.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// CleanupInterval is how often scheduled repair runs.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// RetryAttempts bounds remote call retries.
	RetryAttempts int `mapstructure:"retry_attempts"`

	// RetentionDays is the completed-record retention window.
	RetentionDays int `mapstructure:"retention_days"`
}

// DatabasePath is where the local SQLite database lives.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "lavamatic.db")
}

// CacheDir is where the key-value scratch storage lives.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// TriggerDir is watched by the daemon for "save progress" requests.
func (c *Config) TriggerDir() string {
	return filepath.Join(c.DataDir, "triggers")
}

// LogPath is the rotating log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "lavapos.log")
}

// Load reads configuration. cfgFile may be empty to use the default
// search path.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("terminal_id", "terminal-1")
	v.SetDefault("data_dir", ".lavamatic")
	v.SetDefault("remote_url", "")
	v.SetDefault("remote_api_key", "")
	v.SetDefault("sync_interval", 2*time.Minute)
	v.SetDefault("cleanup_interval", time.Hour)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retention_days", 90)

	v.SetEnvPrefix("LAVAMATIC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("lavamatic")
		v.SetConfigType("yaml")
		v.AddConfigPath(".lavamatic")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// Running on defaults is fine; a malformed file is not.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
