package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

// HasTable reports whether a table exists.
func (db *DB) HasTable(ctx context.Context, name string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
	if err := db.conn.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	return count > 0, nil
}

// DropTable removes a table if it exists.
func (db *DB) DropTable(ctx context.Context, name string) error {
	if _, err := db.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}

// CreateTable creates the table and indexes described by t.
func (db *DB) CreateTable(ctx context.Context, t schema.Table) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range CreateTableSQL(t) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", t.Name, err)
	}
	return nil
}

// Columns lists the column names of an existing table in declaration order.
func (db *DB) Columns(ctx context.Context, name string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdentifier(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			colName   string
			colType   string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
		}
		columns = append(columns, colName)
	}
	return columns, rows.Err()
}

// BulkInsert inserts rows into t inside a single transaction using one
// prepared statement. Columns missing from a row are inserted as NULL.
func (db *DB) BulkInsert(ctx context.Context, t schema.Table, rows []schema.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	names := t.Names()
	stmt, err := tx.PrepareContext(ctx, insertSQL(t.Name, names, false, ""))
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", t.Name, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args, err := bindValues(t, names, row)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert into %s: %w", t.Name, err)
	}
	return nil
}

// CreateTableSQL returns the statements that create t and its indexes.
func CreateTableSQL(t schema.Table) []string {
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := quoteIdentifier(c.Name) + " " + sqlType(c.Type)
		if c.Name == t.Key {
			def += " PRIMARY KEY"
		} else if c.Unique {
			def += " UNIQUE"
		}
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.HasDefault {
			def += " DEFAULT " + sqlLiteral(c.Default)
		}
		defs = append(defs, def)
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quoteIdentifier(t.Name), strings.Join(defs, ",\n\t"))}

	for _, c := range t.Columns {
		if !c.Index || c.Name == t.Key {
			continue
		}
		idx := fmt.Sprintf("idx_%s_%s", t.Name, c.Name)
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			quoteIdentifier(idx), quoteIdentifier(t.Name), quoteIdentifier(c.Name)))
	}
	return stmts
}

func sqlType(typ schema.ColumnType) string {
	switch typ {
	case schema.Integer, schema.Boolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int, int64, float64:
		return fmt.Sprint(val)
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(val), "'", "''") + "'"
	}
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
