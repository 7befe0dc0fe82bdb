package record

import (
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

// Record is a row together with the state it had when it was loaded, so a
// save can tell whether its file moved.
type Record struct {
	Attrs schema.Row

	original schema.Row
	exists   bool
}

// New returns a record that has not been persisted yet.
func New(attrs schema.Row) *Record {
	if attrs == nil {
		attrs = schema.Row{}
	}
	return &Record{Attrs: attrs}
}

// Loaded returns a record for a row read from the store.
func Loaded(row schema.Row) *Record {
	return &Record{Attrs: row.Clone(), original: row.Clone(), exists: true}
}

// Get returns an attribute.
func (r *Record) Get(key string) any {
	return r.Attrs[key]
}

// Set changes an attribute.
func (r *Record) Set(key string, value any) {
	r.Attrs[key] = value
}

// Exists reports whether the record has been persisted.
func (r *Record) Exists() bool {
	return r.exists
}

// Original returns the attributes as last persisted, or nil for a new
// record.
func (r *Record) Original() schema.Row {
	return r.original
}

// Persisted marks the current attributes as the stored state.
func (r *Record) Persisted() {
	r.original = r.Attrs.Clone()
	r.exists = true
}

// Deleted marks the record as no longer stored.
func (r *Record) Deleted() {
	r.exists = false
}
