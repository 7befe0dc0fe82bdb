// Package sync keeps the SQLite cache and the flat content files in step.
//
// Overview
//
// The files under the content roots are the source of truth. The cache is a
// derived index that can be thrown away and rebuilt at any time. The engine
// moves data in both directions:
//
//	Content files (collections, asset containers)
//	     ├── <collection>/.../<slug>.md       → entries table
//	     └── <dir>/.meta/<basename>.yaml      → assets table
//	                      ↑         ↓
//	               Save/Delete   Rebuild, SyncFile
//	                      ↑         ↓
//	                     SQLite cache
//
// Boot
//
// Boot runs once at startup. For every kind it asks the Detector whether
// the cached table is stale and rebuilds it if so:
//
//	engine := sync.New(store, files, kinds, sync.DefaultOptions())
//	reports, err := engine.Boot(ctx)
//	if err != nil {
//	    return err
//	}
//
// Staleness
//
// A kind is stale when any of these hold, checked in order:
//
//  1. Options.AlwaysRebuild is set
//  2. the database is in memory, or its file is missing
//  3. the kind definition (the running executable) is newer than the cache
//  4. watching is enabled and a file or directory under a root is newer
//  5. the kind's table does not exist
//
// Rebuild
//
// Rebuild drops and recreates the kind's table, decodes every accepted file
// concurrently, resolves defaults and inserts the rows in batches of
// Options.BatchSize. Values that depend on other rows, or that are costly to
// compute, are applied afterwards as point updates.
//
// Files that fail to decode and rows that fail to resolve are logged and
// skipped. Store errors abort the rebuild.
//
// Write-Through
//
// Save and Delete change a row and mirror the change to its file inside one
// transaction. A failed file operation rolls the row change back:
//
//	rec, err := engine.Find(ctx, record.EntryKind, "0b3f...")
//	if err != nil {
//	    return err
//	}
//	rec.Set("slug", "renamed")
//	if err := engine.Save(ctx, record.EntryKind, rec); err != nil {
//	    return err
//	}
//
// Incremental Sync
//
// SyncFile and ForgetFile refresh or drop the single row owned by a changed
// path. The daemon calls them for file system events; they satisfy the
// Syncer interface.
//
// Concurrency
//
// The engine assumes a single writer per process. Rebuild reads files in
// parallel but writes from one goroutine. Save, Delete and the incremental
// calls run synchronously in the caller's goroutine.
package sync
