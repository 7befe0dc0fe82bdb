// Package storage abstracts the file tree that holds the canonical records.
//
// Paths passed to a Storage are slash-separated and relative to its base.
// Missing files are reported with errors matching fs.ErrNotExist.
package storage

import (
	"time"
)

// Storage reads and writes canonical record files.
type Storage interface {
	// Read returns the contents of a file.
	Read(path string) ([]byte, error)

	// Write replaces the contents of a file, creating parent directories.
	Write(path string, data []byte) error

	// Delete removes a file. Deleting a missing file returns fs.ErrNotExist.
	Delete(path string) error

	// LastModified returns the modification time of a file or directory.
	LastModified(path string) (time.Time, error)

	// Exists reports whether a file or directory exists.
	Exists(path string) bool

	// MakeDir creates a directory and its parents.
	MakeDir(path string) error

	// List returns every file below root, recursively, as paths relative
	// to root in lexical order. A missing root yields an empty list.
	List(root string) ([]string, error)
}
