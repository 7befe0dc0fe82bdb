package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load("", root)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "storage/stache.sqlite", cfg.Database)
	assert.Equal(t, filepath.Join(root, "storage", "stache.sqlite"), cfg.DatabasePath())
	assert.Equal(t, "content/collections", cfg.Content.Collections)
	assert.Equal(t, []AssetContainer{{Handle: "assets", Dir: "public/assets"}}, cfg.Assets)
	assert.True(t, cfg.Watcher)
	assert.False(t, cfg.AlwaysRebuild)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.LogFile())
	assert.Equal(t, 8080, cfg.Dashboard.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Daemon.Debounce)
}

func TestLoad_YAMLInRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "stache.yaml", `
database: ":memory:"
multisite: true
assets:
  - handle: images
    dir: public/images
  - handle: docs
    dir: public/docs
daemon:
  debounce: 250ms
log:
  level: debug
  file: storage/logs/stache.log
`)

	cfg, err := Load("", root)
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.DatabasePath())
	assert.True(t, cfg.Multisite)
	assert.Equal(t, []AssetContainer{
		{Handle: "images", Dir: "public/images"},
		{Handle: "docs", Dir: "public/docs"},
	}, cfg.Assets)
	assert.Equal(t, 250*time.Millisecond, cfg.Daemon.Debounce)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join(root, "storage", "logs", "stache.log"), cfg.LogFile())
}

func TestLoad_ExplicitTOML(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "site.toml", `
batch_size = 100
watcher = false

[content]
collections = "content/entries"
`)

	cfg, err := Load(p, "")
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.False(t, cfg.Watcher)
	assert.Equal(t, "content/entries", cfg.Content.Collections)
	assert.Equal(t, ".", cfg.Root)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STACHE_BATCH_SIZE", "42")
	t.Setenv("STACHE_LOG_LEVEL", "warn")
	t.Setenv("STACHE_DAEMON_DEBOUNCE", "1s")

	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.BatchSize)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, time.Second, cfg.Daemon.Debounce)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty database", func(c *Config) { c.Database = "" }},
		{"empty collections", func(c *Config) { c.Content.Collections = "" }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }},
		{"zero debounce", func(c *Config) { c.Daemon.Debounce = 0 }},
		{"port out of range", func(c *Config) { c.Dashboard.Port = 70000 }},
		{"asset without dir", func(c *Config) { c.Assets = []AssetContainer{{Handle: "assets"}} }},
		{"duplicate handles", func(c *Config) {
			c.Assets = []AssetContainer{{Handle: "a", Dir: "x"}, {Handle: "a", Dir: "y"}}
		}},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_InvalidFileFailsValidation(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "stache.yaml", "batch_size: -5\n")

	_, err := Load("", root)
	assert.ErrorContains(t, err, "batch_size")
}
