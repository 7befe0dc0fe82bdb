package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{
			name: "front matter with body",
			in:   "---\ntitle: Hi\n---\n\nHello world\n",
			want: map[string]any{"title": "Hi", "content": "Hello world\n"},
		},
		{
			name: "front matter without body",
			in:   "---\ntitle: Hi\n---\n",
			want: map[string]any{"title": "Hi"},
		},
		{
			name: "blank body is dropped",
			in:   "---\ntitle: Hi\n---\n\n   \n",
			want: map[string]any{"title": "Hi"},
		},
		{
			name: "empty front matter",
			in:   "---\n---\nBody only",
			want: map[string]any{"content": "Body only"},
		},
		{
			name: "pure yaml",
			in:   "title: Hi\ntags:\n  - a\n  - b\n",
			want: map[string]any{"title": "Hi", "tags": []any{"a", "b"}},
		},
		{
			name: "document marker without closing fence",
			in:   "---\ntitle: Hi\n",
			want: map[string]any{"title": "Hi"},
		},
		{
			name: "toml front matter",
			in:   "+++\ntitle = \"Hi\"\ncount = 3\n+++\nBody\n",
			want: map[string]any{"title": "Hi", "count": int64(3), "content": "Body\n"},
		},
		{
			name: "crlf line endings",
			in:   "---\r\ntitle: Hi\r\n---\r\nBody\r\n",
			want: map[string]any{"title": "Hi", "content": "Body\n"},
		},
		{
			name: "empty input",
			in:   "",
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{
		"---\ntitle: [unclosed\n---\n",
		"- just\n- a list\n",
		"+++\ntitle = \n+++\n",
	} {
		_, err := Parse([]byte(in))
		assert.True(t, errors.Is(err, ErrMalformed), "Parse(%q) error = %v", in, err)
	}
}

func TestDumpWithBody_RoundTrip(t *testing.T) {
	data := map[string]any{"title": "Hi", "nested": map[string]any{"a": 1}}

	out, err := DumpWithBody(data, "Hello world\n")
	require.NoError(t, err)
	assert.Equal(t, "---\nnested:\n  a: 1\ntitle: Hi\n---\nHello world\n", string(out))

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title":   "Hi",
		"nested":  map[string]any{"a": 1},
		"content": "Hello world\n",
	}, back)
}

func TestDump_Empty(t *testing.T) {
	out, err := Dump(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = DumpWithBody(nil, "Body")
	require.NoError(t, err)
	assert.Equal(t, "---\n---\nBody", string(out))
}
