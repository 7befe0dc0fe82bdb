package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	stachesync "github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a path must stay quiet before its change
	// is applied. This batches rapid updates together.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           slog.Default(),
	}
}

// Stats counts the changes the daemon has applied.
type Stats struct {
	Synced    int
	Forgotten int
	Failed    int
}

// change is the latest queued operation for one path.
type change struct {
	op       EventOp
	queuedAt time.Time
}

// Daemon applies file changes below a base directory to the cache.
type Daemon struct {
	syncer  stachesync.Syncer
	watcher *FileWatcher
	config  *Config
	logger  *slog.Logger

	changeQueue   map[string]change
	changeQueueMu sync.Mutex

	stats   Stats
	statsMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a new Daemon instance.
//
// The daemon requires:
//   - syncer: applies single file changes, usually a *sync.Engine
//   - base: the directory storage paths are relative to
//
// Use Start() to begin watching and syncing.
func New(syncer stachesync.Syncer, base string) (*Daemon, error) {
	return NewWithConfig(syncer, base, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(syncer stachesync.Syncer, base string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if base == "" {
		return nil, fmt.Errorf("base cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := NewFileWatcher(base)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:      syncer,
		watcher:     watcher,
		config:      config,
		logger:      logger.With("component", "daemon"),
		changeQueue: make(map[string]change),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start watches the syncer's roots and applies changes until ctx is
// cancelled. The cache should be booted before the daemon starts.
func (d *Daemon) Start(ctx context.Context) error {
	roots := d.syncer.Roots()
	d.logger.Info("starting daemon", "roots", roots)

	if err := d.watcher.Start(roots...); err != nil {
		return fmt.Errorf("failed to watch roots: %w", err)
	}

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()

	select {
	case <-ctx.Done():
		d.logger.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. Changes still waiting in the queue
// are dropped; the next boot picks them up.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.logger.Info("stopping daemon")
		d.cancel()

		if stopErr := d.watcher.Stop(); stopErr != nil {
			err = stopErr
		}

		d.wg.Wait()
		d.logger.Info("daemon stopped", "pending", d.Pending())
	})
	return err
}

// Stats returns a snapshot of the applied change counters.
func (d *Daemon) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Pending returns the number of queued changes.
func (d *Daemon) Pending() int {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	return len(d.changeQueue)
}

// watchFileEvents moves watcher events into the change queue.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	events := d.watcher.Events()
	errs := d.watcher.Errors()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			d.logger.Debug("file event", "op", event.Op, "path", event.Path)
			d.queueChange(event.Path, event.Op)

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

// queueChange records the latest operation for path and restarts its
// debounce window.
func (d *Daemon) queueChange(path string, op EventOp) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = change{op: op, queuedAt: time.Now()}
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges applies the changes that have been quiet for a full
// debounce interval, in path order. The queue is not locked while the
// syncer runs so new events keep arriving.
func (d *Daemon) processPendingChanges() {
	now := time.Now()
	ready := make(map[string]EventOp)

	d.changeQueueMu.Lock()
	for path, c := range d.changeQueue {
		if now.Sub(c.queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready[path] = c.op
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	paths := make([]string, 0, len(ready))
	for path := range ready {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	for _, path := range paths {
		if d.ctx.Err() != nil {
			return
		}
		d.apply(path, ready[path])
	}
}

func (d *Daemon) apply(path string, op EventOp) {
	var err error
	if op == OpDelete {
		err = d.syncer.ForgetFile(d.ctx, path)
	} else {
		err = d.syncer.SyncFile(d.ctx, path)
	}

	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	switch {
	case err != nil:
		d.stats.Failed++
		d.logger.Error("failed to apply change", "op", op, "path", path, "error", err)
	case op == OpDelete:
		d.stats.Forgotten++
		d.logger.Debug("forgot file", "path", path)
	default:
		d.stats.Synced++
		d.logger.Debug("synced file", "path", path)
	}
}
