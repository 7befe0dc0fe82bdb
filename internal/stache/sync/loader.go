package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/notify"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/record"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

// Report summarizes one rebuild.
type Report struct {
	Kind     string
	Files    int // accepted files found under the roots
	Inserted int
	Skipped  int // files that failed to decode or resolve, or repeated a key
	Patched  int // rows updated by a deferred computation
	Batches  int
	Duration time.Duration
}

type source struct {
	root record.Root
	rel  string
}

type pending struct {
	src      source
	row      schema.Row
	deferred record.Deferred
}

// Rebuild drops the kind's table and reloads it from storage.
//
// Decode and schema failures skip the file, as does a file whose key was
// already loaded from an earlier path. Store failures abort the
// rebuild and leave the table partially loaded; the next Boot rebuilds it.
func (e *Engine) Rebuild(ctx context.Context, kind record.Kind) (Report, error) {
	start := time.Now()
	report := Report{Kind: kind.Name()}
	e.logger.Info("rebuilding cache", "kind", kind.Name())

	table := fullTable(kind)
	if err := e.store.DropTable(ctx, table.Name); err != nil {
		return report, fmt.Errorf("failed to drop %s: %w", table.Name, err)
	}
	if err := e.store.CreateTable(ctx, table); err != nil {
		return report, fmt.Errorf("failed to create %s: %w", table.Name, err)
	}
	e.blueprints.Register(kind.Name(), table)

	sources, err := e.listSources(kind)
	if err != nil {
		return report, err
	}
	report.Files = len(sources)

	var rows []pending
	seen := make(map[string]string)
	for i, decoded := range e.decodeAll(kind, sources) {
		if decoded == nil {
			report.Skipped++
			continue
		}
		resolved, err := table.Resolve(decoded.Row)
		if err != nil {
			e.logger.Error("skipping row", "kind", kind.Name(), "path", sources[i].rel, "error", err)
			report.Skipped++
			continue
		}
		key := fmt.Sprint(resolved[table.Key])
		if first, dup := seen[key]; dup {
			e.logger.Error("skipping duplicate key", "kind", kind.Name(), "key", key, "path", sources[i].rel, "first", first)
			report.Skipped++
			continue
		}
		seen[key] = sources[i].rel
		rows = append(rows, pending{src: sources[i], row: resolved, deferred: decoded.Deferred})
	}

	for lo := 0; lo < len(rows); lo += e.opts.BatchSize {
		hi := min(lo+e.opts.BatchSize, len(rows))
		batch := make([]schema.Row, 0, hi-lo)
		for _, p := range rows[lo:hi] {
			batch = append(batch, p.row)
		}
		if err := e.store.BulkInsert(ctx, table, batch); err != nil {
			return report, fmt.Errorf("failed to insert batch %d of %s: %w", report.Batches+1, table.Name, err)
		}
		report.Batches++
		report.Inserted += len(batch)
	}

	find := e.finder(table)
	for _, p := range rows {
		if p.deferred == nil {
			continue
		}
		patch, err := p.deferred(ctx, find)
		if err != nil {
			e.logger.Warn("failed to compute deferred values", "kind", kind.Name(), "path", p.src.rel, "error", err)
			continue
		}
		if len(patch) == 0 {
			continue
		}
		if err := e.store.UpdateByKey(ctx, table, p.row[table.Key], patch); err != nil {
			return report, fmt.Errorf("failed to patch %s %v: %w", table.Name, p.row[table.Key], err)
		}
		report.Patched++
	}

	report.Duration = time.Since(start)
	e.logger.Info("rebuild complete",
		"kind", kind.Name(),
		"files", report.Files,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"patched", report.Patched,
		"batches", report.Batches,
		"duration", report.Duration)

	e.publish(ctx, notify.Rebuilt, kind.Name(), "", schema.Row{
		"files":    report.Files,
		"inserted": report.Inserted,
		"skipped":  report.Skipped,
	})
	return report, nil
}

// listSources returns the accepted files of every root in path order.
// Missing roots are skipped.
func (e *Engine) listSources(kind record.Kind) ([]source, error) {
	var out []source
	for _, root := range kind.Roots() {
		if !e.files.Exists(root.Dir) {
			e.logger.Debug("root doesn't exist (skipping)", "kind", kind.Name(), "root", root.Dir)
			continue
		}
		files, err := e.files.List(root.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", root.Dir, err)
		}
		for _, rel := range files {
			if kind.Accept(rel) {
				out = append(out, source{root: root, rel: rel})
			}
		}
	}
	return out, nil
}

// decodeAll decodes sources concurrently. The result is index-aligned with
// sources; failed files are nil.
func (e *Engine) decodeAll(kind record.Kind, sources []source) []*record.Decoded {
	out := make([]*record.Decoded, len(sources))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			decoded, err := e.decodeFile(kind, src.root, src.rel)
			if err != nil {
				e.logger.Warn("failed to decode file (skipping)", "kind", kind.Name(), "path", src.rel, "error", err)
				return nil
			}
			out[i] = decoded
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// decodeFile reads and decodes the record at rel and records the path its
// contents came from. A missing optional content file decodes as empty.
func (e *Engine) decodeFile(kind record.Kind, root record.Root, rel string) (*record.Decoded, error) {
	contentPath, optional := kind.ContentPath(root, rel)

	contents, err := e.files.Read(contentPath)
	metaExists := true
	switch {
	case err == nil:
	case optional && errors.Is(err, fs.ErrNotExist):
		contents, metaExists = nil, false
	default:
		return nil, err
	}

	decoded, err := kind.Decode(record.Source{
		Root:       root,
		Path:       rel,
		Contents:   contents,
		MetaExists: metaExists,
	})
	if err != nil {
		return nil, err
	}

	if metaExists {
		decoded.Row[record.ColumnReadFrom] = contentPath
	} else {
		decoded.Row[record.ColumnReadFrom] = nil
	}
	return decoded, nil
}

// recordPath is the storage path of the record file itself.
func recordPath(root record.Root, rel string) string {
	return path.Join(root.Dir, rel)
}
