package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent represents a change to one file.
type FileEvent struct {
	// Path is relative to the watcher's base directory, slash separated.
	Path string
	// Op is the operation that occurred (create, modify, delete).
	Op EventOp
}

// FileWatcher watches directory trees for changes.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	base    string
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewFileWatcher creates a watcher that reports paths relative to base.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher(base string) (*FileWatcher, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		base:    abs,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching each root, relative to the base directory, and
// every directory below it.
func (fw *FileWatcher) Start(roots ...string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	for _, root := range roots {
		dir := filepath.Join(fw.base, filepath.FromSlash(root))
		if err := fw.addTree(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching for file system events and cleans up resources.
// It blocks until the event processing goroutine has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel that emits FileEvent notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		return fw.watcher.Add(p)
	})
}

// processEvents is the main event loop that processes fsnotify events
// and converts them to FileEvent notifications.
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if !fw.watchNewDir(event.Name) {
					return
				}
				continue
			}

			if fileEvent, ok := fw.convertEvent(event); ok {
				if !fw.emit(fileEvent) {
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// watchNewDir watches a directory created after Start and reports the
// files already inside it, which may have been written before the watch
// was in place. It returns false once the watcher is stopping.
func (fw *FileWatcher) watchNewDir(dir string) bool {
	if err := fw.addTree(dir); err != nil {
		select {
		case fw.errors <- err:
		case <-fw.done:
			return false
		}
	}

	var found []FileEvent
	_ = filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if rel, ok := fw.relative(p); ok {
			found = append(found, FileEvent{Path: rel, Op: OpCreate})
		}
		return nil
	})

	for _, e := range found {
		if !fw.emit(e) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) emit(e FileEvent) bool {
	select {
	case fw.events <- e:
		return true
	case <-fw.done:
		return false
	}
}

// convertEvent converts an fsnotify event to a FileEvent.
// Returns (FileEvent, true) if the event should be processed,
// or (FileEvent{}, false) if the event should be ignored.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	rel, ok := fw.relative(event.Name)
	if !ok {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// Treat rename as delete (the new name will trigger a create)
		op = OpDelete
	default:
		// Ignore chmod and other events
		return FileEvent{}, false
	}

	return FileEvent{Path: rel, Op: op}, true
}

// relative converts an absolute path below the base to a storage path.
func (fw *FileWatcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(fw.base, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
