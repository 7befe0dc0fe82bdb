// Package config loads stache settings from a config file and the
// environment.
//
// Settings are read with viper from stache.yaml (or .toml, .json) in the
// site root, or from an explicit --config file. Every key can be overridden
// with a STACHE_ environment variable, nested keys joined by underscores:
//
//	STACHE_DATABASE=/tmp/cache.sqlite
//	STACHE_LOG_LEVEL=debug
//	STACHE_DAEMON_DEBOUNCE=250ms
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "STACHE"

// memoryDatabase is the database value for an in-memory cache.
const memoryDatabase = ":memory:"

// Config is the full set of stache settings.
type Config struct {
	// Root is the site directory all relative paths resolve against.
	Root string `mapstructure:"root"`

	// Database is the cache file, or ":memory:".
	Database string `mapstructure:"database"`

	Content   ContentConfig    `mapstructure:"content"`
	Assets    []AssetContainer `mapstructure:"assets"`
	Multisite bool             `mapstructure:"multisite"`

	// Watcher enables the file mtime check at boot.
	Watcher       bool `mapstructure:"watcher"`
	AlwaysRebuild bool `mapstructure:"always_rebuild"`
	BatchSize     int  `mapstructure:"batch_size"`
	Concurrency   int  `mapstructure:"concurrency"`

	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
}

// ContentConfig locates the entry files.
type ContentConfig struct {
	Collections string `mapstructure:"collections"`
}

// AssetContainer is one named asset directory.
type AssetContainer struct {
	Handle string `mapstructure:"handle"`
	Dir    string `mapstructure:"dir"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// File switches to JSON logs in a rotated file.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DashboardConfig configures the websocket dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// DaemonConfig configures the file watching daemon.
type DaemonConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("database", "storage/stache.sqlite")
	v.SetDefault("content.collections", "content/collections")
	v.SetDefault("assets", []map[string]any{{"handle": "assets", "dir": "public/assets"}})
	v.SetDefault("multisite", false)
	v.SetDefault("watcher", true)
	v.SetDefault("always_rebuild", false)
	v.SetDefault("batch_size", 500)
	v.SetDefault("concurrency", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("daemon.debounce", 100*time.Millisecond)
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads the settings.
//
// If path is set that file must exist. Otherwise stache.{yaml,toml,json} is
// looked up in root and is optional. root, when set, overrides the root key.
func Load(path, root string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		dir := root
		if dir == "" {
			dir = "."
		}
		v.SetConfigName("stache")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if root != "" {
		v.Set("root", root)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("invalid config: database path is empty")
	}
	if c.Content.Collections == "" {
		return fmt.Errorf("invalid config: content.collections is empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("invalid config: concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Daemon.Debounce <= 0 {
		return fmt.Errorf("invalid config: daemon.debounce must be positive, got %s", c.Daemon.Debounce)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid config: dashboard.port %d out of range", c.Dashboard.Port)
	}

	seen := make(map[string]bool, len(c.Assets))
	for i, a := range c.Assets {
		if a.Handle == "" || a.Dir == "" {
			return fmt.Errorf("invalid config: assets[%d] needs a handle and a dir", i)
		}
		if seen[a.Handle] {
			return fmt.Errorf("invalid config: duplicate asset container %q", a.Handle)
		}
		seen[a.Handle] = true
	}
	return nil
}

// DatabasePath resolves the database against the root. The in-memory
// database and absolute paths are returned unchanged.
func (c *Config) DatabasePath() string {
	if c.Database == memoryDatabase || filepath.IsAbs(c.Database) {
		return c.Database
	}
	return filepath.Join(c.Root, c.Database)
}

// LogFile resolves the log file against the root. Empty means stderr.
func (c *Config) LogFile() string {
	if c.Log.File == "" || filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(c.Root, c.Log.File)
}
