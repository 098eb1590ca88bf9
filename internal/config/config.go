// Package config loads Brain Box configuration from a config file,
// environment variables, and defaults, in that order of precedence
// (environment wins).
//
// The config file is optional; a fresh install works entirely from
// defaults plus BRAINBOX_SERVER_URL.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig locates the backend.
type ServerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig locates the local store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SyncConfig controls retry behavior.
type SyncConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// DaemonConfig controls the background sync daemon.
type DaemonConfig struct {
	// ProbeInterval is how often connectivity is checked.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	// ProbeTimeout bounds each connectivity probe.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// PollInterval is how often a sync run is triggered even without a
	// local mutation, picking up server-side changes.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig controls the daemon's rotating log file.
type LoggingConfig struct {
	// File is the log path; empty means stderr only.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration. configFile, when non-empty, names an
// explicit config file; otherwise the default locations are searched
// (./brainbox.yaml, then $XDG_CONFIG_HOME/brainbox/brainbox.yaml).
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BRAINBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("brainbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "brainbox"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("database.path", defaultDatabasePath())
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.backoff_base", time.Second)
	v.SetDefault("sync.backoff_cap", 60*time.Second)
	v.SetDefault("sync.send_timeout", 10*time.Second)
	v.SetDefault("daemon.probe_interval", 15*time.Second)
	v.SetDefault("daemon.probe_timeout", 5*time.Second)
	v.SetDefault("daemon.poll_interval", 5*time.Minute)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "brainbox.db"
	}
	return filepath.Join(home, ".local", "share", "brainbox", "brainbox.db")
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffCap < c.Sync.BackoffBase {
		return fmt.Errorf("sync backoff range is invalid (base %s, cap %s)",
			c.Sync.BackoffBase, c.Sync.BackoffCap)
	}
	if c.Sync.SendTimeout <= 0 {
		return fmt.Errorf("sync.send_timeout must be positive")
	}
	return nil
}
