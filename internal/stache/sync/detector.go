package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/record"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/storage"
)

// Detector decides whether a kind's cached table must be rebuilt.
type Detector struct {
	store  Store
	files  storage.Storage
	opts   Options
	logger *slog.Logger
}

// ShouldRebuild reports whether kind is stale. A missing cache file is a
// reason to rebuild, not an error.
func (d *Detector) ShouldRebuild(ctx context.Context, kind record.Kind) (bool, error) {
	reason, err := d.Reason(ctx, kind)
	if err != nil {
		return false, err
	}
	if reason == "" {
		return false, nil
	}
	d.logger.Debug("cache is stale", "kind", kind.Name(), "reason", reason)
	return true, nil
}

// Reason returns why kind is stale, or "" when its cache is current.
func (d *Detector) Reason(ctx context.Context, kind record.Kind) (string, error) {
	if d.opts.AlwaysRebuild {
		return "always rebuild", nil
	}
	if d.store.InMemory() {
		return "in-memory database", nil
	}

	cached, ok := d.cacheTime()
	if !ok {
		return "cache file missing", nil
	}
	if d.definedAt().After(cached) {
		return "definition changed", nil
	}
	if d.FilesChanged(ctx, kind, cached) {
		return "files changed", nil
	}

	exists, err := d.store.HasTable(ctx, kind.Name())
	if err != nil {
		return "", fmt.Errorf("failed to check table %s: %w", kind.Name(), err)
	}
	if !exists {
		return "table missing", nil
	}
	return "", nil
}

// cacheTime is the newest modification time of the database file and its
// write-ahead log.
func (d *Detector) cacheTime() (time.Time, bool) {
	info, err := os.Stat(d.store.Path())
	if err != nil {
		return time.Time{}, false
	}
	newest := info.ModTime()
	if wal, err := os.Stat(d.store.Path() + "-wal"); err == nil && wal.ModTime().After(newest) {
		newest = wal.ModTime()
	}
	return newest, true
}

func (d *Detector) definedAt() time.Time {
	if !d.opts.DefinedAt.IsZero() {
		return d.opts.DefinedAt
	}
	exe, err := os.Executable()
	if err != nil {
		return time.Time{}
	}
	info, err := os.Stat(exe)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// FilesChanged reports whether any root of kind, any directory below it or
// any file in it was modified after since. It is always false when watching
// is disabled.
func (d *Detector) FilesChanged(ctx context.Context, kind record.Kind, since time.Time) bool {
	if !d.opts.Watcher {
		return false
	}

	newer := func(p string) bool {
		t, err := d.files.LastModified(p)
		return err == nil && t.After(since)
	}

	for _, root := range kind.Roots() {
		if !d.files.Exists(root.Dir) {
			continue
		}
		if newer(root.Dir) {
			return true
		}

		files, err := d.files.List(root.Dir)
		if err != nil {
			d.logger.Warn("failed to list root", "kind", kind.Name(), "root", root.Dir, "error", err)
			return true
		}

		seen := make(map[string]bool)
		for _, rel := range files {
			if ctx.Err() != nil {
				return true
			}
			if newer(path.Join(root.Dir, rel)) {
				return true
			}
			for dir := path.Dir(rel); dir != "." && !seen[dir]; dir = path.Dir(dir) {
				seen[dir] = true
				if newer(path.Join(root.Dir, dir)) {
					return true
				}
			}
		}
	}
	return false
}
