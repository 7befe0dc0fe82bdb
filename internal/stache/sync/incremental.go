package sync

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/db"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/notify"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/record"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

// owner finds the kind, root and record path a changed storage path
// belongs to.
func (e *Engine) owner(p string) (record.Kind, record.Root, string, bool) {
	p = cleanPath(p)
	for _, kind := range e.Kinds() {
		for _, root := range kind.Roots() {
			rel, ok := strings.CutPrefix(p, cleanPath(root.Dir)+"/")
			if !ok {
				continue
			}
			if owner, ok := kind.Owner(rel); ok {
				return kind, root, owner, true
			}
		}
	}
	return nil, record.Root{}, "", false
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// identity selects the columns that name the file a row came from.
func identity(table schema.Table, row schema.Row) schema.Row {
	where := schema.Row{}
	for _, col := range []string{"container", "path"} {
		if _, ok := table.Column(col); ok {
			where[col] = row[col]
		}
	}
	return where
}

// SyncFile implements Syncer.SyncFile.
func (e *Engine) SyncFile(ctx context.Context, p string) error {
	kind, root, rel, ok := e.owner(p)
	if !ok {
		return nil
	}
	if !e.files.Exists(recordPath(root, rel)) {
		return e.forget(ctx, kind, root, rel)
	}

	table, err := e.Blueprint(ctx, kind)
	if err != nil {
		return err
	}
	decoded, err := e.decodeFile(kind, root, rel)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", p, err)
	}
	row, err := table.Resolve(decoded.Row)
	if err != nil {
		return fmt.Errorf("failed to sync %s: %w", p, err)
	}

	err = e.store.Tx(ctx, func(w db.Writer) error {
		if _, err := w.DeleteWhere(ctx, table, identity(table, row)); err != nil {
			return err
		}
		return w.Upsert(ctx, table, row)
	})
	if err != nil {
		return fmt.Errorf("failed to sync %s: %w", p, err)
	}

	if decoded.Deferred != nil {
		patch, err := decoded.Deferred(ctx, e.finder(table))
		if err != nil {
			e.logger.Warn("failed to compute deferred values", "kind", kind.Name(), "path", rel, "error", err)
		} else if len(patch) > 0 {
			if err := e.store.UpdateByKey(ctx, table, row[table.Key], patch); err != nil {
				return fmt.Errorf("failed to patch %s %v: %w", table.Name, row[table.Key], err)
			}
			for k, v := range patch {
				row[k] = v
			}
		}
	}

	e.logger.Info("synced file", "kind", kind.Name(), "path", rel, "key", row[table.Key])
	e.publish(ctx, notify.Synced, kind.Name(), row[table.Key], row)
	return nil
}

// ForgetFile implements Syncer.ForgetFile.
func (e *Engine) ForgetFile(ctx context.Context, p string) error {
	kind, root, rel, ok := e.owner(p)
	if !ok {
		return nil
	}
	if e.files.Exists(recordPath(root, rel)) {
		return e.SyncFile(ctx, p)
	}
	return e.forget(ctx, kind, root, rel)
}

func (e *Engine) forget(ctx context.Context, kind record.Kind, root record.Root, rel string) error {
	attrs, err := kind.DecodePath(root, rel)
	if err != nil {
		e.logger.Debug("ignoring path", "kind", kind.Name(), "path", rel, "error", err)
		return nil
	}
	table, err := e.Blueprint(ctx, kind)
	if err != nil {
		return err
	}

	n, err := e.store.DeleteWhere(ctx, table, identity(table, attrs))
	if err != nil {
		return fmt.Errorf("failed to forget %s: %w", rel, err)
	}
	if n == 0 {
		return nil
	}

	e.logger.Info("forgot file", "kind", kind.Name(), "path", rel)
	e.publish(ctx, notify.Deleted, kind.Name(), attrs["path"], attrs)
	return nil
}
