// Package db provides the embedded SQLite store that backs the stache cache.
//
// The cache is a derived index: every row can be rebuilt from the flat files
// it was decoded from. The database therefore favours fast rebuilds and
// concurrent reads over durability guarantees.
//
// Architecture:
//   - Database file: storage/stache.sqlite (configurable), or ":memory:"
//   - WAL mode: concurrent readers while the loader writes
//   - One table per record kind, created from a schema.Table
//   - Identity column is the primary key, so upserts use ON CONFLICT
//
// Workflow:
//  1. The engine checks HasTable and the file mtime to decide staleness
//  2. DropTable/CreateTable rebuild the kind's table from its blueprint
//  3. BulkInsert loads decoded rows in batches, UpdateByKey patches them
//  4. Write-through saves run Insert/UpdateByKey/DeleteByKey inside Tx
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNotFound is returned when no row matches a key.
var ErrNotFound = errors.New("row not found")

// DB wraps the SQLite connection pool.
type DB struct {
	executor
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The parent directory is created when missing. MemoryPath opens an
// in-memory database pinned to a single connection so every query sees the
// same data.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open("storage/stache.sqlite")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	memory := path == MemoryPath

	// busy_timeout is per connection, so it goes in the DSN for every
	// connection the pool opens.
	connStr := "file::memory:?_pragma=busy_timeout(5000)"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		conn.SetMaxOpenConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		executor: executor{q: conn},
		conn:     conn,
		path:     path,
	}

	if !memory {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	return db, nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// InMemory reports whether the database lives only in memory.
func (db *DB) InMemory() bool {
	return db.path == MemoryPath
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if !db.InMemory() {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			slog.Warn("failed to checkpoint WAL", "path", db.path, "error", err)
		}
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// Tx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (db *DB) Tx(ctx context.Context, fn func(Writer) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{executor: executor{q: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx is a Writer bound to an open transaction.
type Tx struct {
	executor
}
