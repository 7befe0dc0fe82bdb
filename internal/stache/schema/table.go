package schema

import (
	"fmt"
	"sync"
)

// Table describes the cache table of one record kind.
type Table struct {
	Name    string
	Key     string
	Columns []Column
}

// Names returns the column names in declaration order.
func (t Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// With returns a copy of t extended by cols. Columns already declared keep
// their original definition.
func (t Table) With(cols ...Column) Table {
	out := Table{Name: t.Name, Key: t.Key, Columns: append([]Column(nil), t.Columns...)}
	for _, c := range cols {
		if _, ok := out.Column(c.Name); ok {
			continue
		}
		out.Columns = append(out.Columns, c)
	}
	return out
}

// Timestamps returns the created_at and updated_at columns.
func Timestamps() []Column {
	return []Column{
		NewColumn("created_at", DateTime).AsNullable(),
		NewColumn("updated_at", DateTime).AsNullable(),
	}
}

// Only returns the subset of row whose keys are columns of t.
func (t Table) Only(row Row) Row {
	out := make(Row, len(row))
	for _, c := range t.Columns {
		if v, ok := row[c.Name]; ok {
			out[c.Name] = v
		}
	}
	return out
}

// Resolve returns a row holding exactly the columns of t. Values missing
// from row are filled from column defaults, or null for nullable columns.
// Keys that are not columns are dropped.
func (t Table) Resolve(row Row) (Row, error) {
	out := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		v, ok := row[c.Name]
		if ok && v != nil {
			out[c.Name] = v
			continue
		}
		switch {
		case c.HasDefault:
			out[c.Name] = c.Default
		case c.Nullable:
			out[c.Name] = nil
		default:
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingColumn, t.Name, c.Name)
		}
	}
	return out, nil
}

// Registry remembers the blueprint of each kind. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]Table
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]Table)}
}

// Register records the blueprint for kind, replacing any previous one.
func (r *Registry) Register(kind string, t Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[kind] = t
}

// Blueprint returns the blueprint recorded for kind.
func (r *Registry) Blueprint(kind string) (Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[kind]
	return t, ok
}

// Forget drops the blueprint of kind.
func (r *Registry) Forget(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, kind)
}
