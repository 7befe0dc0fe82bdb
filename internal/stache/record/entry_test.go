package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/codec"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/db"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

func newTestEntry(multisite bool) *Entry {
	return NewEntry(EntryConfig{
		Dir:       "content/collections",
		Multisite: multisite,
		NewID:     func() string { return "generated-id" },
	})
}

func decodeEntry(t *testing.T, e *Entry, rel, contents string) *Decoded {
	t.Helper()
	decoded, err := e.Decode(Source{Root: e.Roots()[0], Path: rel, Contents: []byte(contents)})
	require.NoError(t, err)
	return decoded
}

func TestEntry_DecodeDatedScenario(t *testing.T) {
	e := newTestEntry(false)
	decoded := decodeEntry(t, e, "blog/2024-01-01.hello-world.md", "---\ntitle: Hi\n---\n")

	row := decoded.Row
	assert.Equal(t, "blog", row["collection"])
	assert.Equal(t, "2024-01-01", row["date"])
	assert.Equal(t, "hello-world", row["slug"])
	assert.Equal(t, map[string]any{"title": "Hi"}, row["data"])
	assert.Equal(t, "default", row["site"])
	assert.Equal(t, "", row["folder"])
	assert.Equal(t, "blog/2024-01-01.hello-world", row["path"])
	assert.Equal(t, "generated-id", row["id"])
	assert.Nil(t, decoded.Deferred)
}

func TestEntry_DecodePath(t *testing.T) {
	tests := []struct {
		name      string
		multisite bool
		rel       string
		want      schema.Row
		wantErr   error
	}{
		{
			name: "plain",
			rel:  "pages/about.md",
			want: schema.Row{"collection": "pages", "site": "default", "folder": "", "slug": "about", "path": "pages/about"},
		},
		{
			name: "nested folder",
			rel:  "docs/guide/setup/install.md",
			want: schema.Row{"collection": "docs", "site": "default", "folder": "guide/setup", "slug": "install", "path": "docs/guide/setup/install"},
		},
		{
			name: "date with time",
			rel:  "blog/2024-01-01-1230.launch.md",
			want: schema.Row{"collection": "blog", "site": "default", "folder": "", "slug": "launch", "date": "2024-01-01-1230", "path": "blog/2024-01-01-1230.launch"},
		},
		{
			name: "dot without date stays in slug",
			rel:  "blog/v1.2-release.md",
			want: schema.Row{"collection": "blog", "site": "default", "folder": "", "slug": "v1.2-release", "path": "blog/v1.2-release"},
		},
		{
			name:      "multisite locale",
			multisite: true,
			rel:       "blog/fr/2024-01-01.bonjour.md",
			want:      schema.Row{"collection": "blog", "site": "fr", "folder": "", "slug": "bonjour", "date": "2024-01-01", "path": "blog/fr/2024-01-01.bonjour"},
		},
		{
			name:    "no grouping",
			rel:     "orphan.md",
			wantErr: ErrNoGrouping,
		},
		{
			name:      "multisite without site",
			multisite: true,
			rel:       "blog/post.md",
			wantErr:   ErrNoSite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEntry(tt.multisite)
			got, err := e.DecodePath(e.Roots()[0], tt.rel)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "error = %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, err := e.EncodePath(got)
			require.NoError(t, err)
			assert.Equal(t, got["path"], back, "EncodePath should invert DecodePath")
		})
	}
}

func TestEntry_MultisiteRowsDifferOnlyBySite(t *testing.T) {
	e := newTestEntry(true)
	ids := []string{"a", "b"}
	i := 0
	e.newID = func() string { i++; return ids[i-1] }

	en := decodeEntry(t, e, "blog/en/hello.md", "title: Hello\n").Row
	fr := decodeEntry(t, e, "blog/fr/hello.md", "title: Hello\n").Row

	assert.Equal(t, "en", en["site"])
	assert.Equal(t, "fr", fr["site"])
	assert.NotEqual(t, en["id"], fr["id"])

	for _, k := range []string{"collection", "slug", "folder", "data"} {
		assert.Equal(t, en[k], fr[k], "column %s", k)
	}
}

func TestEntry_PathOverridesFrontMatter(t *testing.T) {
	e := newTestEntry(false)
	row := decodeEntry(t, e, "blog/hello.md", "id: abc\nslug: other\ncollection: news\npublished: false\nblueprint: article\n").Row

	assert.Equal(t, "abc", row["id"])
	assert.Equal(t, "hello", row["slug"])
	assert.Equal(t, "blog", row["collection"])
	assert.Equal(t, false, row["published"])
	assert.Equal(t, "article", row["blueprint"])
	assert.Equal(t, map[string]any{}, row["data"])
}

func TestEntry_BodyGoesToData(t *testing.T) {
	e := newTestEntry(false)
	row := decodeEntry(t, e, "blog/hello.md", "---\ntitle: Hi\n---\nSome *markdown*\n").Row

	assert.Equal(t, map[string]any{"title": "Hi", "content": "Some *markdown*\n"}, row["data"])
}

func TestEntry_RoundTrip(t *testing.T) {
	e := newTestEntry(false)
	original := "id: abc\ntitle: Hi\ntags:\n  - a\n  - b\nnested:\n  key: value\n"

	row := decodeEntry(t, e, "blog/hello.md", original).Row
	encoded, err := e.Encode(row)
	require.NoError(t, err)

	want, err := codec.Parse([]byte(original))
	require.NoError(t, err)
	got, err := codec.Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEntry_EncodeWithBody(t *testing.T) {
	e := newTestEntry(false)
	row := schema.Row{
		"id":        "abc",
		"published": false,
		"blueprint": "",
		"data":      map[string]any{"title": "Hi", "subtitle": nil, "content": "Body\n"},
	}

	out, err := e.Encode(row)
	require.NoError(t, err)
	assert.Equal(t, "---\nid: abc\npublished: false\ntitle: Hi\n---\nBody\n", string(out))
}

func TestEntry_FileDataKeepsNullsForOrigin(t *testing.T) {
	e := newTestEntry(false)
	data := e.FileData(schema.Row{
		"id":        "fr-1",
		"origin":    "en-1",
		"published": true,
		"data":      map[string]any{"title": nil},
	})

	assert.Equal(t, map[string]any{"id": "fr-1", "origin": "en-1", "title": nil}, data)
}

func TestEntry_Locate(t *testing.T) {
	e := newTestEntry(true)
	loc, err := e.Locate(schema.Row{"collection": "blog", "site": "en", "folder": "news", "date": "2024-01-01", "slug": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "content/collections/blog/en/news/2024-01-01.hi.md", loc)

	_, err = e.Locate(schema.Row{"collection": "blog"})
	assert.True(t, errors.Is(err, ErrUnlocatable))
}

func TestEntry_EncodePathDateToken(t *testing.T) {
	e := newTestEntry(false)

	tests := []struct {
		name string
		date any
		want string
	}{
		{"date only", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "blog/2024-01-01.hello"},
		{"with clock time", time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC), "blog/2024-01-01-0930.hello"},
		{"stored datetime", "2024-01-01 09:30:00", "blog/2024-01-01-0930.hello"},
		{"stored date", "2024-01-01", "blog/2024-01-01.hello"},
		{"filename token", "2024-01-01-0930", "blog/2024-01-01-0930.hello"},
		{"not a date", "someday", "blog/hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EncodePath(schema.Row{"collection": "blog", "slug": "hello", "date": tt.date})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, err := e.DecodePath(e.Roots()[0], got+".md")
			require.NoError(t, err)
			assert.Equal(t, "hello", back["slug"], "DecodePath should read the date token back")
		})
	}
}

func TestEntry_OriginBlueprintDeferred(t *testing.T) {
	e := newTestEntry(false)
	decoded := decodeEntry(t, e, "blog/bonjour.md", "id: fr-1\norigin: en-1\n")
	require.NotNil(t, decoded.Deferred)

	find := func(_ context.Context, key any) (schema.Row, error) {
		if key == "en-1" {
			return schema.Row{"id": "en-1", "blueprint": "article"}, nil
		}
		return nil, db.ErrNotFound
	}
	patch, err := decoded.Deferred(context.Background(), find)
	require.NoError(t, err)
	assert.Equal(t, schema.Row{"blueprint": "article"}, patch)

	orphan := decodeEntry(t, e, "blog/orphan.md", "id: fr-2\norigin: missing\n")
	patch, err = orphan.Deferred(context.Background(), find)
	require.NoError(t, err)
	assert.Nil(t, patch)
}

func TestEntry_Accept(t *testing.T) {
	e := newTestEntry(false)
	assert.True(t, e.Accept("blog/hello.md"))
	assert.False(t, e.Accept("blog/hello.yaml"))
	assert.False(t, e.Accept("blog/.drafts/hello.md"))
}
