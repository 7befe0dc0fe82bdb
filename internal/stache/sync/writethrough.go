package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/db"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/notify"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/record"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

// Op is the write a hook is asked about.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Hook decides whether a write is mirrored to storage. Every hook
// registered for a kind runs; if any returns false the row still changes
// but no file is written or deleted and no event is published. An error
// aborts the write.
type Hook interface {
	Allow(ctx context.Context, op Op, rec *record.Record) (bool, error)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, op Op, rec *record.Record) (bool, error)

func (f HookFunc) Allow(ctx context.Context, op Op, rec *record.Record) (bool, error) {
	return f(ctx, op, rec)
}

// RegisterHook adds a hook for a kind. Hooks run in registration order.
// Register hooks before the engine is used concurrently.
func (e *Engine) RegisterHook(kindName string, h Hook) {
	e.hooks[kindName] = append(e.hooks[kindName], h)
}

func (e *Engine) allow(ctx context.Context, kind string, op Op, rec *record.Record) (bool, error) {
	allowed := true
	for _, h := range e.hooks[kind] {
		ok, err := h.Allow(ctx, op, rec)
		if err != nil {
			return false, fmt.Errorf("failed to run %s hook for %s: %w", op, kind, err)
		}
		if !ok {
			allowed = false
		}
	}
	return allowed, nil
}

// Save persists rec and writes its file.
//
// A new record is inserted, with a key from the kind when it has none. An
// existing record is updated by the key it was loaded with. If the file
// location changed, the old file is deleted before the new one is written.
// Both happen in the same transaction as the row change; a file error rolls
// the row back and is returned.
func (e *Engine) Save(ctx context.Context, kindName string, rec *record.Record) error {
	kind, err := e.Kind(kindName)
	if err != nil {
		return err
	}
	table, err := e.Blueprint(ctx, kind)
	if err != nil {
		return err
	}

	op, action := OpUpdate, notify.Updated
	if !rec.Exists() {
		op, action = OpCreate, notify.Created
	}
	allowed, err := e.allow(ctx, kind.Name(), op, rec)
	if err != nil {
		return err
	}

	now := e.opts.Now().Format(time.DateTime)
	if op == OpCreate {
		if isBlank(rec.Attrs[table.Key]) {
			rec.Attrs[table.Key] = kind.Identify(rec.Attrs)
		}
		if rec.Attrs["created_at"] == nil {
			rec.Attrs["created_at"] = now
		}
	}
	rec.Attrs["updated_at"] = now

	row, err := table.Resolve(rec.Attrs)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", kind.Name(), err)
	}

	err = e.store.Tx(ctx, func(w db.Writer) error {
		if op == OpCreate {
			if err := w.Insert(ctx, table, row); err != nil {
				return err
			}
		} else if err := w.UpdateByKey(ctx, table, rec.Original()[table.Key], row); err != nil {
			return err
		}
		if !allowed {
			return nil
		}
		return e.mirror(ctx, w, kind, table, rec, row)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s %v: %w", kind.Name(), row[table.Key], err)
	}

	rec.Attrs = row
	rec.Persisted()
	if m, ok := kind.(record.Materializer); ok {
		m.Materialize(row)
	}

	if allowed {
		e.logger.Debug("saved record", "kind", kind.Name(), "key", row[table.Key], "op", op)
		e.publish(ctx, action, kind.Name(), row[table.Key], row)
	}
	return nil
}

// mirror writes the row's file, then records where the file lives with a
// quiet update. A record only moves when the save changed the attributes
// its location is derived from; the previous file is then removed.
func (e *Engine) mirror(ctx context.Context, w db.Writer, kind record.Kind, table schema.Table, rec *record.Record, row schema.Row) error {
	target, err := kind.Locate(row)
	if err != nil {
		return err
	}

	moved := true
	if rec.Exists() {
		previous := previousLocation(kind, rec.Original())
		if !relocated(kind, rec.Original(), row) {
			moved = false
			if previous != "" {
				target = previous
			}
		} else if previous != "" && previous != target {
			if err := e.files.Delete(previous); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				e.logger.Warn("previous file already gone", "kind", kind.Name(), "path", previous)
			}
		}
	}

	data, err := kind.Encode(row)
	if err != nil {
		return fmt.Errorf("failed to encode %s %v: %w", kind.Name(), row[table.Key], err)
	}
	if err := e.files.Write(target, data); err != nil {
		return err
	}

	quiet := schema.Row{record.ColumnReadFrom: target}
	if flag := kind.MetaFlag(); flag != "" {
		quiet[flag] = true
	}
	if r, ok := kind.(record.Relocator); ok && moved {
		attrs, err := r.Relocate(row)
		if err != nil {
			return err
		}
		for k, v := range attrs {
			quiet[k] = v
		}
	}
	if err := w.UpdateByKey(ctx, table, row[table.Key], quiet); err != nil {
		return err
	}
	for k, v := range quiet {
		if _, ok := table.Column(k); ok {
			row[k] = v
		}
	}
	return nil
}

// relocated reports whether the attributes that place a record's file
// differ between its stored and current state.
func relocated(kind record.Kind, original, current schema.Row) bool {
	before, err := kind.Locate(original)
	if err != nil {
		return true
	}
	after, err := kind.Locate(current)
	if err != nil {
		return true
	}
	return before != after
}

// previousLocation is where a stored row's file was read from, falling
// back to the location derived from its attributes.
func previousLocation(kind record.Kind, original schema.Row) string {
	if p, ok := original[record.ColumnReadFrom].(string); ok && p != "" {
		return p
	}
	p, err := kind.Locate(original)
	if err != nil {
		return ""
	}
	return p
}

// Delete removes rec's row and its file. A file that is already gone is
// not an error. The deleted event is only published when a row was removed.
func (e *Engine) Delete(ctx context.Context, kindName string, rec *record.Record) error {
	kind, err := e.Kind(kindName)
	if err != nil {
		return err
	}
	table, err := e.Blueprint(ctx, kind)
	if err != nil {
		return err
	}

	allowed, err := e.allow(ctx, kind.Name(), OpDelete, rec)
	if err != nil {
		return err
	}

	key := rec.Attrs[table.Key]
	if rec.Exists() {
		key = rec.Original()[table.Key]
	}

	var removed int64
	err = e.store.Tx(ctx, func(w db.Writer) error {
		n, err := w.DeleteWhere(ctx, table, schema.Row{table.Key: key})
		if err != nil {
			return err
		}
		removed = n
		if !allowed {
			return nil
		}

		target := ""
		if rec.Exists() && !relocated(kind, rec.Original(), rec.Attrs) {
			target = previousLocation(kind, rec.Original())
		}
		if target == "" {
			if target, err = kind.Locate(rec.Attrs); err != nil {
				return err
			}
		}
		if err := e.files.Delete(target); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			e.logger.Warn("file already gone", "kind", kind.Name(), "path", target)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s %v: %w", kind.Name(), key, err)
	}

	rec.Deleted()
	if allowed && removed > 0 {
		e.logger.Debug("deleted record", "kind", kind.Name(), "key", key)
		e.publish(ctx, notify.Deleted, kind.Name(), key, rec.Attrs)
	}
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
