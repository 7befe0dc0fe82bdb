package record

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/codec"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/db"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

// EntryKind is the name and table of entries.
const EntryKind = "entries"

// DefaultSite is the site of entries when multisite is disabled.
const DefaultSite = "default"

const entryExt = ".md"

// dateToken matches the date prefix of a dated entry filename:
// 2024-01-01.hello.md or 2024-01-01-1230.hello.md
var dateToken = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(-\d{4})?$`)

// EntryConfig configures the entry kind.
type EntryConfig struct {
	// Dir is the collections root in storage.
	Dir string

	// Multisite makes the segment after the collection a site handle.
	Multisite bool

	// NewID generates ids for files that don't declare one.
	// Defaults to random UUIDs.
	NewID func() string
}

// Entry is the kind for content entries stored as
// <collection>/[<site>/][<folder>/][<date>.]<slug>.md
type Entry struct {
	root      Root
	multisite bool
	newID     func() string
}

// NewEntry returns the entry kind.
func NewEntry(cfg EntryConfig) *Entry {
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Entry{
		root:      Root{Handle: "collections", Dir: cfg.Dir},
		multisite: cfg.Multisite,
		newID:     newID,
	}
}

func (e *Entry) Name() string { return EntryKind }

func (e *Entry) Roots() []Root { return []Root{e.root} }

func (e *Entry) MetaFlag() string { return "" }

func (e *Entry) Table() schema.Table {
	return schema.Table{
		Name: EntryKind,
		Key:  ColumnID,
		Columns: []schema.Column{
			schema.NewColumn(ColumnID, schema.String).AsUnique(),
			schema.NewColumn("path", schema.String).WithDefault(""),
			schema.NewColumn("blueprint", schema.String).WithDefault(""),
			schema.NewColumn("collection", schema.String).Indexed(),
			schema.NewColumn("folder", schema.String).WithDefault(""),
			schema.NewColumn("origin", schema.String).AsNullable().Indexed(),
			schema.NewColumn(ColumnData, schema.JSON).AsNullable(),
			schema.NewColumn("date", schema.DateTime).AsNullable(),
			schema.NewColumn("published", schema.Boolean).WithDefault(true),
			schema.NewColumn("site", schema.String).WithDefault(DefaultSite).Indexed(),
			schema.NewColumn("slug", schema.String),
		},
	}
}

// Accept keeps Markdown files outside hidden directories.
func (e *Entry) Accept(rel string) bool {
	return strings.HasSuffix(rel, entryExt) && !hidden(rel)
}

func (e *Entry) Owner(rel string) (string, bool) {
	return rel, e.Accept(rel)
}

func (e *Entry) Identify(schema.Row) string {
	return e.newID()
}

func (e *Entry) ContentPath(root Root, rel string) (string, bool) {
	return path.Join(root.Dir, rel), false
}

// DecodePath derives collection, site, folder, date and slug from a path
// relative to the collections root.
func (e *Entry) DecodePath(_ Root, rel string) (schema.Row, error) {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")

	collection, rest, ok := strings.Cut(rel, "/")
	if !ok || collection == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoGrouping, rel)
	}
	rest = strings.TrimSuffix(rest, entryExt)

	site := DefaultSite
	if e.multisite {
		s, after, ok := strings.Cut(rest, "/")
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoSite, rel)
		}
		site, rest = s, after
	}

	folder, name := "", rest
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		folder, name = rest[:i], rest[i+1:]
	}

	row := schema.Row{
		"path":       strings.TrimSuffix(rel, entryExt),
		"collection": collection,
		"site":       site,
		"folder":     folder,
	}
	if token, slug, ok := strings.Cut(name, "."); ok && dateToken.MatchString(token) {
		row["date"] = token
		name = slug
	}
	row["slug"] = name

	return row, nil
}

// EncodePath is the inverse of DecodePath: the path of the row relative to
// the collections root, without extension.
func (e *Entry) EncodePath(row schema.Row) (string, error) {
	collection, _ := row["collection"].(string)
	slug, _ := row["slug"].(string)
	if collection == "" || slug == "" {
		return "", fmt.Errorf("%w: entry %v needs collection and slug", ErrUnlocatable, row[ColumnID])
	}

	parts := []string{collection}
	if e.multisite {
		site, _ := row["site"].(string)
		if site == "" {
			site = DefaultSite
		}
		parts = append(parts, site)
	}
	if folder, _ := row["folder"].(string); folder != "" {
		parts = append(parts, folder)
	}
	if token, ok := dateSegment(row["date"]); ok {
		slug = token + "." + slug
	}
	parts = append(parts, slug)

	return strings.Join(parts, "/"), nil
}

// dateLayouts are the stored date forms a filename date token is derived
// from.
var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// dateSegment renders a date as the filename token DecodePath accepts:
// 2024-01-01, or 2024-01-01-0930 when it has a clock time. Values that are
// not dates produce no token.
func dateSegment(v any) (string, bool) {
	var t time.Time
	switch d := v.(type) {
	case nil:
		return "", false
	case time.Time:
		t = d
	case *time.Time:
		if d == nil {
			return "", false
		}
		t = *d
	case string:
		if d == "" {
			return "", false
		}
		if dateToken.MatchString(d) {
			return d, true
		}
		parsed, ok := parseDate(d)
		if !ok {
			return "", false
		}
		t = parsed
	default:
		return "", false
	}

	if t.Hour() == 0 && t.Minute() == 0 {
		return t.Format(time.DateOnly), true
	}
	return t.Format("2006-01-02-1504"), true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Relocate returns the path attribute for the row's current location.
func (e *Entry) Relocate(row schema.Row) (schema.Row, error) {
	rel, err := e.EncodePath(row)
	if err != nil {
		return nil, err
	}
	return schema.Row{"path": rel}, nil
}

func (e *Entry) Locate(row schema.Row) (string, error) {
	rel, err := e.EncodePath(row)
	if err != nil {
		return "", err
	}
	return path.Join(e.root.Dir, rel+entryExt), nil
}

// Decode builds an entry row from a file. Front-matter keys naming declared
// columns fill those columns; path attributes override them; every other
// key, including the body, goes to data.
func (e *Entry) Decode(src Source) (*Decoded, error) {
	attrs, err := e.DecodePath(src.Root, src.Path)
	if err != nil {
		return nil, err
	}

	parsed, err := codec.Parse(src.Contents)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", src.Path, err)
	}

	table := e.Table()
	row := schema.Row{}
	extra := map[string]any{}
	for k, v := range parsed {
		if _, ok := table.Column(k); ok && k != ColumnData {
			row[k] = v
			continue
		}
		extra[k] = v
	}
	for k, v := range attrs {
		row[k] = v
	}
	row[ColumnData] = extra

	if isEmpty(row[ColumnID]) {
		row[ColumnID] = e.Identify(row)
	} else {
		row[ColumnID] = toString(row[ColumnID])
	}

	decoded := &Decoded{Row: row}
	if origin := row["origin"]; !isEmpty(origin) && isEmpty(row["blueprint"]) {
		decoded.Deferred = inheritBlueprint(toString(origin))
	}
	return decoded, nil
}

// inheritBlueprint gives a localized entry its origin's blueprint once the
// origin row is in the store.
func inheritBlueprint(origin string) Deferred {
	return func(ctx context.Context, find Finder) (schema.Row, error) {
		row, err := find(ctx, origin)
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load origin %s: %w", origin, err)
		}
		if bp := row["blueprint"]; !isEmpty(bp) {
			return schema.Row{"blueprint": bp}, nil
		}
		return nil, nil
	}
}

// FileData returns the mapping written to an entry's file: id, origin,
// published (only when false) and blueprint (only when set), followed by
// the extra data. Null data values are dropped unless the entry has an
// origin, where they mark explicit overrides.
func (e *Entry) FileData(row schema.Row) map[string]any {
	out := map[string]any{}
	if id := row[ColumnID]; !isEmpty(id) {
		out[ColumnID] = id
	}
	origin := row["origin"]
	if !isEmpty(origin) {
		out["origin"] = origin
	}
	if published, ok := row["published"].(bool); ok && !published {
		out["published"] = false
	}
	if bp := row["blueprint"]; !isEmpty(bp) {
		out["blueprint"] = bp
	}

	data := asMap(row[ColumnData])
	if isEmpty(origin) {
		data = WithoutNulls(data)
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

func (e *Entry) Encode(row schema.Row) ([]byte, error) {
	return Dump(e.FileData(row))
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
