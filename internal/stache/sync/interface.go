package sync

import (
	"context"
)

// Syncer applies individual file changes to the cache.
//
// Paths are storage paths, slash separated and relative to the storage base.
// Paths outside every root, or ignored by the kind that owns the root, are
// skipped without error.
type Syncer interface {
	// SyncFile re-reads the record a created or modified path belongs to and
	// replaces its row.
	//
	// A change to an asset's meta file refreshes the asset. If the record's
	// file no longer exists the row is dropped instead.
	//
	// Example:
	//   err := syncer.SyncFile(ctx, "content/collections/blog/hello.md")
	SyncFile(ctx context.Context, path string) error

	// ForgetFile drops the row of a record whose file was removed.
	//
	// Returns nil if no row matches (idempotent). When only an asset's meta
	// file was removed the asset is re-read from its binary instead.
	//
	// Example:
	//   err := syncer.ForgetFile(ctx, "content/collections/blog/hello.md")
	ForgetFile(ctx context.Context, path string) error

	// Roots lists the storage directories that hold records.
	Roots() []string
}

var _ Syncer = (*Engine)(nil)
