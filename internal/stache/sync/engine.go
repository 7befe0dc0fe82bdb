package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/db"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/notify"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/record"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/storage"
)

// ErrUnknownKind is returned for a kind name the engine was not built with.
var ErrUnknownKind = errors.New("unknown record kind")

// Store is the relational surface the engine needs. *db.DB satisfies it.
type Store interface {
	db.Writer

	Path() string
	InMemory() bool
	HasTable(ctx context.Context, name string) (bool, error)
	DropTable(ctx context.Context, name string) error
	CreateTable(ctx context.Context, t schema.Table) error
	Columns(ctx context.Context, name string) ([]string, error)
	BulkInsert(ctx context.Context, t schema.Table, rows []schema.Row) error
	Count(ctx context.Context, t schema.Table) (int, error)
	Tx(ctx context.Context, fn func(db.Writer) error) error
}

// Options tunes the engine.
type Options struct {
	// AlwaysRebuild treats every kind as stale. Meant for tests.
	AlwaysRebuild bool

	// Watcher enables the file modification check during staleness
	// detection.
	Watcher bool

	// BatchSize is the number of rows per bulk insert.
	BatchSize int

	// Concurrency bounds the number of files decoded at once.
	Concurrency int

	// DefinedAt is when the kind definitions last changed. Zero means the
	// modification time of the running executable.
	DefinedAt time.Time

	// Now stamps created_at and updated_at. Defaults to time.Now.
	Now func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Sink receives lifecycle events. Defaults to notify.Discard.
	Sink notify.Sink
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Watcher:     true,
		BatchSize:   500,
		Concurrency: runtime.NumCPU(),
	}
}

// Engine synchronizes record kinds between storage and the cache.
type Engine struct {
	store      Store
	files      storage.Storage
	kinds      map[string]record.Kind
	order      []string
	hooks      map[string][]Hook
	blueprints *schema.Registry
	detector   *Detector
	opts       Options
	logger     *slog.Logger
	sink       notify.Sink
}

// New creates an engine over store and files for the given kinds.
//
// The store must be open. Tables are created by Boot or Rebuild.
//
// Example:
//
//	store, err := db.Open("storage/stache.sqlite")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	files := storage.NewDisk(".")
//	kinds := []record.Kind{
//	    record.NewEntry(record.EntryConfig{Dir: "content/collections"}),
//	    record.NewAsset(containers, files, nil),
//	}
//	engine := sync.New(store, files, kinds, sync.DefaultOptions())
func New(store Store, files storage.Storage, kinds []record.Kind, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sync")
	sink := opts.Sink
	if sink == nil {
		sink = notify.Discard{}
	}

	e := &Engine{
		store:      store,
		files:      files,
		kinds:      make(map[string]record.Kind, len(kinds)),
		hooks:      make(map[string][]Hook),
		blueprints: schema.NewRegistry(),
		opts:       opts,
		logger:     logger,
		sink:       sink,
	}
	for _, k := range kinds {
		e.kinds[k.Name()] = k
		e.order = append(e.order, k.Name())
	}
	e.detector = &Detector{store: store, files: files, opts: opts, logger: logger}
	return e
}

// Kind returns the kind registered under name.
func (e *Engine) Kind(name string) (record.Kind, error) {
	k, ok := e.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}
	return k, nil
}

// Kinds returns the engine's kinds in registration order.
func (e *Engine) Kinds() []record.Kind {
	out := make([]record.Kind, len(e.order))
	for i, name := range e.order {
		out[i] = e.kinds[name]
	}
	return out
}

// Detector returns the staleness detector.
func (e *Engine) Detector() *Detector {
	return e.detector
}

// Roots implements Syncer.Roots.
func (e *Engine) Roots() []string {
	var dirs []string
	for _, k := range e.Kinds() {
		for _, r := range k.Roots() {
			dirs = append(dirs, r.Dir)
		}
	}
	return dirs
}

// fullTable extends a kind's own columns with the driver column and
// timestamps.
func fullTable(kind record.Kind) schema.Table {
	return kind.Table().
		With(schema.NewColumn(record.ColumnReadFrom, schema.String).AsNullable()).
		With(schema.Timestamps()...)
}

// Blueprint returns the table the kind's rows are stored in. It is
// registered by Rebuild; otherwise it is derived once from the kind and
// narrowed to the columns of the live table.
func (e *Engine) Blueprint(ctx context.Context, kind record.Kind) (schema.Table, error) {
	if t, ok := e.blueprints.Blueprint(kind.Name()); ok {
		return t, nil
	}

	t := fullTable(kind)
	exists, err := e.store.HasTable(ctx, t.Name)
	if err != nil {
		return schema.Table{}, fmt.Errorf("failed to check table %s: %w", t.Name, err)
	}
	if exists {
		live, err := e.store.Columns(ctx, t.Name)
		if err != nil {
			return schema.Table{}, fmt.Errorf("failed to read columns of %s: %w", t.Name, err)
		}
		t = narrow(t, live)
	}

	e.blueprints.Register(kind.Name(), t)
	return t, nil
}

func narrow(t schema.Table, live []string) schema.Table {
	present := make(map[string]bool, len(live))
	for _, name := range live {
		present[name] = true
	}
	out := schema.Table{Name: t.Name, Key: t.Key}
	for _, c := range t.Columns {
		if present[c.Name] {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// Boot makes sure every root exists and rebuilds the kinds whose cache is
// stale. It returns a report per rebuilt kind.
func (e *Engine) Boot(ctx context.Context) ([]Report, error) {
	var reports []Report
	for _, kind := range e.Kinds() {
		for _, root := range kind.Roots() {
			if err := e.files.MakeDir(root.Dir); err != nil {
				return reports, fmt.Errorf("failed to create root %s: %w", root.Dir, err)
			}
		}

		stale, err := e.detector.ShouldRebuild(ctx, kind)
		if err != nil {
			return reports, err
		}
		if !stale {
			e.logger.Debug("cache is current", "kind", kind.Name())
			continue
		}

		report, err := e.Rebuild(ctx, kind)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Find loads a record by key. Returns an error wrapping db.ErrNotFound if
// no row matches.
func (e *Engine) Find(ctx context.Context, kindName string, key any) (*record.Record, error) {
	kind, err := e.Kind(kindName)
	if err != nil {
		return nil, err
	}
	table, err := e.Blueprint(ctx, kind)
	if err != nil {
		return nil, err
	}

	row, err := e.store.Get(ctx, table, key)
	if err != nil {
		return nil, err
	}
	if m, ok := kind.(record.Materializer); ok {
		m.Materialize(row)
	}
	return record.Loaded(row), nil
}

// Count returns the number of cached rows of a kind.
func (e *Engine) Count(ctx context.Context, kindName string) (int, error) {
	kind, err := e.Kind(kindName)
	if err != nil {
		return 0, err
	}
	table, err := e.Blueprint(ctx, kind)
	if err != nil {
		return 0, err
	}
	return e.store.Count(ctx, table)
}

func (e *Engine) finder(table schema.Table) record.Finder {
	return func(ctx context.Context, key any) (schema.Row, error) {
		return e.store.Get(ctx, table, key)
	}
}

func (e *Engine) publish(ctx context.Context, action notify.Action, kind string, key any, row schema.Row) {
	ev := notify.Event{
		Action: action,
		Kind:   kind,
		Key:    fmt.Sprint(key),
		At:     e.opts.Now(),
	}
	if row != nil {
		ev.Record = row.Clone()
	}
	e.sink.Publish(ctx, ev)
}
