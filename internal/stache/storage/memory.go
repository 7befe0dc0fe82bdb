package storage

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Storage. Directories exist implicitly while they
// contain files; their modification time is the newest of their files.
type Memory struct {
	mu    sync.RWMutex
	files map[string]memFile
	now   func() time.Time

	// Writes and Deletes count mutating calls, for tests that assert how
	// many file operations a sync performed.
	Writes  int
	Deletes int
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]memFile), now: time.Now}
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func (m *Memory) Read(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[clean(p)]
	if !ok {
		return nil, fmt.Errorf("failed to read %s: %w", p, fs.ErrNotExist)
	}
	return append([]byte(nil), f.data...), nil
}

func (m *Memory) Write(p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[clean(p)] = memFile{data: append([]byte(nil), data...), modTime: m.now()}
	m.Writes++
	return nil
}

func (m *Memory) Delete(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := clean(p)
	if _, ok := m.files[key]; !ok {
		return fmt.Errorf("failed to delete %s: %w", p, fs.ErrNotExist)
	}
	delete(m.files, key)
	m.Deletes++
	return nil
}

func (m *Memory) LastModified(p string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := clean(p)
	if f, ok := m.files[key]; ok {
		return f.modTime, nil
	}

	var (
		newest time.Time
		found  bool
	)
	for name, f := range m.files {
		if !inDir(key, name) {
			continue
		}
		found = true
		if f.modTime.After(newest) {
			newest = f.modTime
		}
	}
	if !found {
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", p, fs.ErrNotExist)
	}
	return newest, nil
}

func (m *Memory) Exists(p string) bool {
	_, err := m.LastModified(p)
	return err == nil
}

// MakeDir is a no-op; directories exist while they hold files.
func (m *Memory) MakeDir(string) error {
	return nil
}

func (m *Memory) List(root string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := clean(root)
	files := []string{}
	for name := range m.files {
		if !inDir(key, name) {
			continue
		}
		if key == "" {
			files = append(files, name)
		} else {
			files = append(files, strings.TrimPrefix(name, key+"/"))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Touch sets the modification time of an existing file.
func (m *Memory) Touch(p string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := clean(p)
	f, ok := m.files[key]
	if !ok {
		return fmt.Errorf("failed to touch %s: %w", p, fs.ErrNotExist)
	}
	f.modTime = t
	m.files[key] = f
	return nil
}

// SetClock replaces the time source used to stamp writes.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func inDir(dir, name string) bool {
	return dir == "" || strings.HasPrefix(name, dir+"/")
}
