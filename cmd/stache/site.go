package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/config"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/logging"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/db"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/notify"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/record"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/storage"
	stachesync "github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/sync"
)

// site is the opened cache of one command run.
type site struct {
	cfg    *config.Config
	logger *slog.Logger
	logs   io.Closer
	store  *db.DB
	files  *storage.Disk
	bus    *notify.Bus
	engine *stachesync.Engine
}

// loadConfig reads the config and applies the persistent flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, rootDir)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.LogFile(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

// openSite loads settings, opens the database and builds the engine.
// The caller MUST call Close() when done.
func openSite() (*site, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, logs, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	store, err := db.Open(cfg.DatabasePath())
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	bus, err := notify.NewBus(logger)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	files := storage.NewDisk(cfg.Root)

	opts := stachesync.DefaultOptions()
	opts.Watcher = cfg.Watcher
	opts.AlwaysRebuild = cfg.AlwaysRebuild
	opts.BatchSize = cfg.BatchSize
	opts.Concurrency = cfg.Concurrency
	opts.Logger = logger
	opts.Sink = bus

	return &site{
		cfg:    cfg,
		logger: logger,
		logs:   logs,
		store:  store,
		files:  files,
		bus:    bus,
		engine: stachesync.New(store, files, buildKinds(cfg, files), opts),
	}, nil
}

// buildKinds returns the record kinds the config describes.
func buildKinds(cfg *config.Config, files *storage.Disk) []record.Kind {
	containers := make([]record.Root, len(cfg.Assets))
	for i, a := range cfg.Assets {
		containers[i] = record.Root{Handle: a.Handle, Dir: a.Dir}
	}
	return []record.Kind{
		record.NewEntry(record.EntryConfig{Dir: cfg.Content.Collections, Multisite: cfg.Multisite}),
		record.NewAsset(containers, files, nil),
	}
}

// Close releases the database and the log file.
func (s *site) Close() error {
	err := s.store.Close()
	if logErr := s.logs.Close(); err == nil {
		err = logErr
	}
	return err
}
