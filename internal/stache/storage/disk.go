package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"
)

// Disk is a Storage rooted at a directory on the local file system.
// Writes go through a temporary file and rename so readers never observe
// a partially written record.
type Disk struct {
	base string
}

// NewDisk returns a Storage rooted at base.
func NewDisk(base string) *Disk {
	return &Disk{base: base}
}

// Base returns the directory the storage is rooted at.
func (d *Disk) Base() string {
	return d.base
}

// Abs returns the absolute file system path of a storage path.
func (d *Disk) Abs(path string) string {
	return filepath.Join(d.base, filepath.FromSlash(path))
}

func (d *Disk) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(d.Abs(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (d *Disk) Write(path string, data []byte) error {
	abs := d.Abs(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := atomic.WriteFile(abs, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (d *Disk) Delete(path string) error {
	if err := os.Remove(d.Abs(path)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (d *Disk) LastModified(path string) (time.Time, error) {
	info, err := os.Stat(d.Abs(path))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}

func (d *Disk) Exists(path string) bool {
	_, err := os.Stat(d.Abs(path))
	return err == nil
}

func (d *Disk) MakeDir(path string) error {
	if err := os.MkdirAll(d.Abs(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

func (d *Disk) List(root string) ([]string, error) {
	absRoot := d.Abs(root)
	if _, err := os.Stat(absRoot); errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}

	var files []string
	err := filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}
