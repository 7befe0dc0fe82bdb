package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

// Writer is the row-level surface shared by DB and Tx.
type Writer interface {
	Insert(ctx context.Context, t schema.Table, row schema.Row) error
	Upsert(ctx context.Context, t schema.Table, row schema.Row) error
	UpdateByKey(ctx context.Context, t schema.Table, key any, values schema.Row) error
	DeleteByKey(ctx context.Context, t schema.Table, key any) error
	DeleteWhere(ctx context.Context, t schema.Table, where schema.Row) (int64, error)
	Get(ctx context.Context, t schema.Table, key any) (schema.Row, error)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// executor implements Writer over a connection pool or a transaction.
type executor struct {
	q queryer
}

// Insert adds a single row.
func (e executor) Insert(ctx context.Context, t schema.Table, row schema.Row) error {
	names := t.Names()
	args, err := bindValues(t, names, row)
	if err != nil {
		return err
	}
	if _, err := e.q.ExecContext(ctx, insertSQL(t.Name, names, false, ""), args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.Name, err)
	}
	return nil
}

// Upsert inserts a row or, if its key already exists, overwrites every
// other column.
func (e executor) Upsert(ctx context.Context, t schema.Table, row schema.Row) error {
	names := t.Names()
	args, err := bindValues(t, names, row)
	if err != nil {
		return err
	}
	if _, err := e.q.ExecContext(ctx, insertSQL(t.Name, names, true, t.Key), args...); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", t.Name, err)
	}
	return nil
}

// UpdateByKey sets the given columns on the row identified by key. Keys in
// values that are not columns of t are ignored.
func (e executor) UpdateByKey(ctx context.Context, t schema.Table, key any, values schema.Row) error {
	var (
		sets []string
		args []any
	)
	for _, c := range t.Columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		stored, err := c.ToDB(v)
		if err != nil {
			return err
		}
		sets = append(sets, quoteIdentifier(c.Name)+" = ?")
		args = append(args, stored)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, key)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdentifier(t.Name), strings.Join(sets, ", "), quoteIdentifier(t.Key))
	if _, err := e.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s %v: %w", t.Name, key, err)
	}
	return nil
}

// DeleteByKey removes the row identified by key.
// Returns nil if the row doesn't exist (idempotent).
func (e executor) DeleteByKey(ctx context.Context, t schema.Table, key any) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdentifier(t.Name), quoteIdentifier(t.Key))
	if _, err := e.q.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %s %v: %w", t.Name, key, err)
	}
	return nil
}

// DeleteWhere removes every row whose columns equal the values in where
// and returns how many were removed. An empty filter deletes nothing.
func (e executor) DeleteWhere(ctx context.Context, t schema.Table, where schema.Row) (int64, error) {
	if len(where) == 0 {
		return 0, nil
	}

	var (
		conds []string
		args  []any
	)
	for _, c := range t.Columns {
		v, ok := where[c.Name]
		if !ok {
			continue
		}
		stored, err := c.ToDB(v)
		if err != nil {
			return 0, err
		}
		conds = append(conds, quoteIdentifier(c.Name)+" = ?")
		args = append(args, stored)
	}
	if len(conds) != len(where) {
		return 0, fmt.Errorf("failed to delete from %s: filter names unknown columns", t.Name)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdentifier(t.Name), strings.Join(conds, " AND "))
	res, err := e.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", t.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows of %s: %w", t.Name, err)
	}
	return n, nil
}

// Get returns the row identified by key, or ErrNotFound.
func (e executor) Get(ctx context.Context, t schema.Table, key any) (schema.Row, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		selectList(t), quoteIdentifier(t.Name), quoteIdentifier(t.Key))

	rows, err := e.q.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s %v: %w", t.Name, key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query %s %v: %w", t.Name, key, err)
		}
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, t.Name, key)
	}
	return scanRow(t, rows)
}

// All returns every row of t ordered by key.
func (e executor) All(ctx context.Context, t schema.Table) ([]schema.Row, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		selectList(t), quoteIdentifier(t.Name), quoteIdentifier(t.Key))

	rows, err := e.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.Name, err)
	}
	defer rows.Close()

	var out []schema.Row
	for rows.Next() {
		row, err := scanRow(t, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Count returns the number of rows in t.
func (e executor) Count(ctx context.Context, t schema.Table) (int, error) {
	var n int
	if err := e.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdentifier(t.Name)).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count %s: %w", t.Name, err)
	}
	return n, nil
}

func scanRow(t schema.Table, rows *sql.Rows) (schema.Row, error) {
	dest := make([]any, len(t.Columns))
	ptrs := make([]any, len(t.Columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan %s row: %w", t.Name, err)
	}

	row := make(schema.Row, len(t.Columns))
	for i, c := range t.Columns {
		v, err := c.FromDB(dest[i])
		if err != nil {
			return nil, err
		}
		row[c.Name] = v
	}
	return row, nil
}

func selectList(t schema.Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdentifier(c.Name)
	}
	return strings.Join(cols, ", ")
}

func insertSQL(table string, names []string, upsert bool, key string) string {
	cols := make([]string, len(names))
	marks := make([]string, len(names))
	for i, n := range names {
		cols[i] = quoteIdentifier(n)
		marks[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if !upsert {
		return query
	}

	var sets []string
	for _, n := range names {
		if n == key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdentifier(n), quoteIdentifier(n)))
	}
	if len(sets) == 0 {
		return query + fmt.Sprintf(" ON CONFLICT(%s) DO NOTHING", quoteIdentifier(key))
	}
	return query + fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", quoteIdentifier(key), strings.Join(sets, ", "))
}

func bindValues(t schema.Table, names []string, row schema.Row) ([]any, error) {
	args := make([]any, len(names))
	for i, n := range names {
		c, _ := t.Column(n)
		v, err := c.ToDB(row[n])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
