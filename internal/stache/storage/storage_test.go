package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()

	files, err := s.List("collections")
	require.NoError(t, err)
	assert.Empty(t, files, "missing root lists nothing")

	require.NoError(t, s.Write("collections/blog/hello.md", []byte("---\ntitle: Hi\n---\n")))
	require.NoError(t, s.Write("collections/blog/nested/deep.md", []byte("title: Deep\n")))
	require.NoError(t, s.Write("collections/pages/about.md", []byte("title: About\n")))

	data, err := s.Read("collections/blog/hello.md")
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: Hi\n---\n", string(data))

	files, err = s.List("collections")
	require.NoError(t, err)
	assert.Equal(t, []string{"blog/hello.md", "blog/nested/deep.md", "pages/about.md"}, files)

	assert.True(t, s.Exists("collections/blog"))
	assert.True(t, s.Exists("collections/blog/hello.md"))
	assert.False(t, s.Exists("collections/blog/missing.md"))

	_, err = s.LastModified("collections/blog/hello.md")
	require.NoError(t, err)
	_, err = s.LastModified("collections/nope")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, s.Delete("collections/blog/hello.md"))
	err = s.Delete("collections/blog/hello.md")
	assert.True(t, errors.Is(err, fs.ErrNotExist), "second delete reports ErrNotExist, got %v", err)

	_, err = s.Read("collections/blog/hello.md")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, s.MakeDir("public/assets"))
	files, err = s.List("public/assets")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDisk(t *testing.T) {
	exerciseStorage(t, NewDisk(t.TempDir()))
}

func TestMemory(t *testing.T) {
	exerciseStorage(t, NewMemory())
}

func TestDisk_WriteReplacesAtomically(t *testing.T) {
	base := t.TempDir()
	d := NewDisk(base)

	require.NoError(t, d.Write("a/b.yaml", []byte("one")))
	require.NoError(t, d.Write("a/b.yaml", []byte("two")))

	data, err := os.ReadFile(filepath.Join(base, "a", "b.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Join(base, "a"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestMemory_DirectoryMtime(t *testing.T) {
	m := NewMemory()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := old.Add(time.Hour)

	require.NoError(t, m.Write("blog/a.md", nil))
	require.NoError(t, m.Write("blog/b.md", nil))
	require.NoError(t, m.Touch("blog/a.md", old))
	require.NoError(t, m.Touch("blog/b.md", newer))

	got, err := m.LastModified("blog")
	require.NoError(t, err)
	assert.Equal(t, newer, got)
	assert.Equal(t, 2, m.Writes)
}
