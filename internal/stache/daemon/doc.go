// Package daemon keeps the cache current while content files change on disk.
//
// # Architecture
//
// The daemon consists of two components:
//
//   - FileWatcher: recursive file system event monitoring using fsnotify
//   - Daemon: debounces watcher events and hands them to a sync.Syncer
//
// # File Watching
//
// The FileWatcher watches every directory below the given roots and reports
// paths relative to its base directory:
//
//	fw, err := daemon.NewFileWatcher("/srv/site")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Stop()
//
//	if err := fw.Start("content/collections", "public/assets"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range fw.Events() {
//	    fmt.Printf("%s %s\n", event.Op, event.Path)
//	}
//
// Directories created after Start are watched as they appear, and files
// already inside them are reported as created.
//
// The watcher maps fsnotify operations as follows:
//   - fsnotify.Create → OpCreate
//   - fsnotify.Write → OpModify
//   - fsnotify.Remove → OpDelete
//   - fsnotify.Rename → OpDelete (the new name triggers a separate Create)
//
// # Debouncing
//
// Editors and atomic writers often produce several events for one save. The
// daemon queues the latest operation per path and applies it once no new
// event arrived for Config.DebounceInterval. Queued changes are applied one
// at a time, so the engine sees a single writer.
//
// # Graceful Shutdown
//
// Start blocks until its context is cancelled, then stops the watcher and
// waits for in-flight changes to finish.
package daemon
