// Package record maps canonical content files to cache rows and back.
//
// # Kinds
//
// The set of record kinds is closed: Entry (Markdown/YAML documents under a
// collections root) and Asset (binary files described by sibling meta
// files under one or more container roots). Both implement Kind, which
// supplies everything the sync engine needs:
//
//   - Table: the kind's columns, defaults and nullability
//   - DecodePath: attributes derived from the relative path alone
//   - Decode: file text plus path attributes to a row
//   - Encode: a row back to canonical file text
//   - Locate: the storage path a row is mirrored to
//
// # Decode Precedence
//
// A decoded row is assembled from, lowest to highest priority: column
// defaults (applied later by schema.Table.Resolve), front-matter keys that
// name declared columns, and path-derived attributes. Keys that are not
// columns become the row's extra "data" value.
//
// # Deferred Values
//
// Some values cannot be computed until rows exist in the store (an entry
// inheriting its origin's blueprint) or are expensive enough to compute
// only after the bulk insert succeeded (asset file statistics). Decode
// returns these as a Deferred function that the loader runs in a second
// pass and applies as a point update.
package record

import (
	"context"
	"errors"
	"strings"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/codec"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

var (
	// ErrNoGrouping is returned for a path without a grouping segment.
	ErrNoGrouping = errors.New("path has no grouping segment")

	// ErrNoSite is returned for a multisite entry path without a site segment.
	ErrNoSite = errors.New("path has no site segment")

	// ErrUnlocatable is returned when a row lacks the attributes needed to
	// derive its file path.
	ErrUnlocatable = errors.New("row cannot be located")
)

// Column names shared by every kind.
const (
	ColumnID       = "id"
	ColumnData     = "data"
	ColumnReadFrom = "file_path_read_from"
	ColumnMetaFile = "meta_file_exists"
)

// Root is a directory that holds files of one kind. Handle names the root
// (the asset container, or "collections" for entries); Dir is its path in
// storage.
type Root struct {
	Handle string
	Dir    string
}

// Source is one file handed to a kind for decoding.
type Source struct {
	Root       Root
	Path       string // relative to Root.Dir, slash separated
	Contents   []byte
	MetaExists bool
}

// Finder looks up a row of the same kind by key.
type Finder func(ctx context.Context, key any) (schema.Row, error)

// Deferred computes values for a row after it has been inserted. A nil or
// empty result means nothing to patch.
type Deferred func(ctx context.Context, find Finder) (schema.Row, error)

// Decoded is the result of decoding one file.
type Decoded struct {
	Row      schema.Row
	Deferred Deferred
}

// Kind is the capability set of a record kind.
type Kind interface {
	// Name is the kind's handle and table name.
	Name() string

	// Table describes the kind's own columns.
	Table() schema.Table

	// Roots lists the directories files of this kind live under.
	Roots() []Root

	// Accept reports whether a file below a root belongs to this kind.
	Accept(rel string) bool

	// Owner maps a changed path below a root to the relative path of the
	// record it belongs to. ok is false for paths the kind ignores.
	Owner(rel string) (owner string, ok bool)

	// Identify returns a key for a row that has none.
	Identify(row schema.Row) string

	// ContentPath returns the storage path holding the decodable text for
	// the file at rel. optional reports whether that path may be absent.
	ContentPath(root Root, rel string) (path string, optional bool)

	// DecodePath derives attributes from a relative path. No I/O.
	DecodePath(root Root, rel string) (schema.Row, error)

	// Decode converts a file into a row.
	Decode(src Source) (*Decoded, error)

	// Encode converts a row into canonical file text.
	Encode(row schema.Row) ([]byte, error)

	// Locate returns the storage path the row is mirrored to.
	Locate(row schema.Row) (string, error)

	// MetaFlag names the column recording that a companion meta file
	// exists, or "" for kinds without one.
	MetaFlag() string
}

// Relocator is implemented by kinds whose stored attributes describe the
// file location. Relocate returns those attributes for the row's current
// location so they can be refreshed after a move.
type Relocator interface {
	Relocate(row schema.Row) (schema.Row, error)
}

// Materializer is implemented by kinds that keep derived state (such as
// meta cache entries) for rows that are saved or loaded outside a decode.
type Materializer interface {
	Materialize(row schema.Row)
}

// Dump encodes file data. A non-null "content" value becomes the document
// body below a front-matter block; otherwise the whole mapping is written as
// a single YAML document.
func Dump(data map[string]any) ([]byte, error) {
	content, ok := data[codec.ContentKey]
	if !ok || content == nil {
		return codec.Dump(data)
	}

	header := make(map[string]any, len(data)-1)
	for k, v := range data {
		if k != codec.ContentKey {
			header[k] = v
		}
	}
	return codec.DumpWithBody(header, toString(content))
}

// WithoutNulls returns a copy of m without null values.
func WithoutNulls(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return strings.TrimSpace(schema.FormatTime(v))
	}
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case schema.Row:
		return m
	default:
		return nil
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
