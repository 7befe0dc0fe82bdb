package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/db"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/notify"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/record"
)

func TestSyncFile_CreatesAndUpdates(t *testing.T) {
	f := newFixture(t, inMemory())
	f.rebuild(t, record.EntryKind)
	ctx := context.Background()

	p := collectionsDir + "/blog/hello.md"
	f.write(t, p, "id: abc\ntitle: First\n")
	require.NoError(t, f.engine.SyncFile(ctx, p))

	rec, err := f.engine.Find(ctx, record.EntryKind, "abc")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "First"}, rec.Get("data"))

	f.write(t, p, "id: abc\ntitle: Second\n")
	require.NoError(t, f.engine.SyncFile(ctx, p))

	rec, err = f.engine.Find(ctx, record.EntryKind, "abc")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Second"}, rec.Get("data"))

	n, err := f.engine.Count(ctx, record.EntryKind)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []notify.Action{notify.Rebuilt, notify.Synced, notify.Synced}, f.events.Actions())
}

func TestSyncFile_ChangedIDReplacesRow(t *testing.T) {
	f := newFixture(t, inMemory())
	p := collectionsDir + "/blog/hello.md"
	f.write(t, p, "id: old\n")
	f.rebuild(t, record.EntryKind)
	ctx := context.Background()

	f.write(t, p, "id: new\n")
	require.NoError(t, f.engine.SyncFile(ctx, p))

	_, err := f.engine.Find(ctx, record.EntryKind, "old")
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = f.engine.Find(ctx, record.EntryKind, "new")
	assert.NoError(t, err)
}

func TestSyncFile_IgnoresForeignPaths(t *testing.T) {
	f := newFixture(t, inMemory())
	ctx := context.Background()

	assert.NoError(t, f.engine.SyncFile(ctx, "README.md"))
	assert.NoError(t, f.engine.SyncFile(ctx, collectionsDir+"/blog/notes.txt"))
	assert.NoError(t, f.engine.ForgetFile(ctx, assetsDir+"/.DS_Store"))
}

func TestSyncFile_MalformedFileFails(t *testing.T) {
	f := newFixture(t, inMemory())
	f.rebuild(t, record.EntryKind)

	p := collectionsDir + "/blog/broken.md"
	f.write(t, p, "- not\n- a mapping\n")
	assert.Error(t, f.engine.SyncFile(context.Background(), p))
}

func TestForgetFile(t *testing.T) {
	f := newFixture(t, inMemory())
	p := collectionsDir + "/blog/2024-01-01.hello.md"
	f.write(t, p, "id: abc\n")
	f.rebuild(t, record.EntryKind)
	ctx := context.Background()

	require.NoError(t, f.files.Delete(p))
	require.NoError(t, f.engine.ForgetFile(ctx, p))

	_, err := f.engine.Find(ctx, record.EntryKind, "abc")
	assert.ErrorIs(t, err, db.ErrNotFound)

	require.NoError(t, f.engine.ForgetFile(ctx, p), "forgetting twice is a no-op")
	assert.Equal(t, []notify.Action{notify.Rebuilt, notify.Deleted}, f.events.Actions())
}

func TestAssetMetaChanges(t *testing.T) {
	f := newFixture(t, inMemory())
	f.write(t, assetsDir+"/images/cat.png", "binary")
	f.rebuild(t, record.AssetKind)
	ctx := context.Background()

	meta := assetsDir + "/images/.meta/cat.png.yaml"
	f.write(t, meta, "data:\n  alt: A cat\n")
	require.NoError(t, f.engine.SyncFile(ctx, meta))

	rec, err := f.engine.Find(ctx, record.AssetKind, "assets::images/cat.png")
	require.NoError(t, err)
	assert.Equal(t, true, rec.Get(record.ColumnMetaFile))
	assert.Equal(t, map[string]any{"alt": "A cat"}, rec.Get("data"))

	// Dropping the meta file falls back to statistics from the binary.
	require.NoError(t, f.files.Delete(meta))
	require.NoError(t, f.engine.ForgetFile(ctx, meta))

	rec, err = f.engine.Find(ctx, record.AssetKind, "assets::images/cat.png")
	require.NoError(t, err)
	assert.Equal(t, false, rec.Get(record.ColumnMetaFile))
	assert.Equal(t, int64(6), rec.Get("size"))
	assert.Equal(t, "image/png", rec.Get("mime_type"))

	// Removing the binary drops the asset.
	require.NoError(t, f.files.Delete(assetsDir+"/images/cat.png"))
	require.NoError(t, f.engine.ForgetFile(ctx, assetsDir+"/images/cat.png"))

	n, err := f.engine.Count(ctx, record.AssetKind)
	require.NoError(t, err)
	assert.Zero(t, n)
}
