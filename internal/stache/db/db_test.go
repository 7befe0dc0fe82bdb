package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
)

func testTable() schema.Table {
	return schema.Table{
		Name: "entries",
		Key:  "id",
		Columns: []schema.Column{
			schema.NewColumn("id", schema.String).AsUnique(),
			schema.NewColumn("collection", schema.String).Indexed(),
			schema.NewColumn("slug", schema.String),
			schema.NewColumn("published", schema.Boolean).WithDefault(true),
			schema.NewColumn("size", schema.Integer).AsNullable(),
			schema.NewColumn("data", schema.JSON).AsNullable(),
		},
	}
}

// openTestDB opens a file-backed database with the test table created.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "stache.sqlite"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.CreateTable(context.Background(), testTable()); err != nil {
		t.Fatalf("CreateTable() failed: %v", err)
	}
	return store
}

func TestOpen_Memory(t *testing.T) {
	store, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	if !store.InMemory() {
		t.Error("InMemory() = false for :memory:")
	}

	ctx := context.Background()
	if err := store.CreateTable(ctx, testTable()); err != nil {
		t.Fatalf("CreateTable() failed: %v", err)
	}
	ok, err := store.HasTable(ctx, "entries")
	if err != nil || !ok {
		t.Fatalf("HasTable() = %v, %v; want true", ok, err)
	}
}

func TestCreateDropTable(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	cols, err := store.Columns(ctx, "entries")
	if err != nil {
		t.Fatalf("Columns() failed: %v", err)
	}
	want := testTable().Names()
	if len(cols) != len(want) {
		t.Fatalf("Columns() = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("Columns()[%d] = %s, want %s", i, cols[i], want[i])
		}
	}

	if err := store.DropTable(ctx, "entries"); err != nil {
		t.Fatalf("DropTable() failed: %v", err)
	}
	if ok, _ := store.HasTable(ctx, "entries"); ok {
		t.Error("table still exists after DropTable()")
	}
	if err := store.DropTable(ctx, "entries"); err != nil {
		t.Errorf("DropTable() on missing table failed: %v", err)
	}
}

func TestBulkInsertAndGet(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	table := testTable()

	rows := []schema.Row{
		{"id": "a", "collection": "blog", "slug": "first", "published": true, "data": map[string]any{"title": "First"}},
		{"id": "b", "collection": "blog", "slug": "second", "published": false, "size": 12},
	}
	if err := store.BulkInsert(ctx, table, rows); err != nil {
		t.Fatalf("BulkInsert() failed: %v", err)
	}

	n, err := store.Count(ctx, table)
	if err != nil || n != 2 {
		t.Fatalf("Count() = %d, %v; want 2", n, err)
	}

	got, err := store.Get(ctx, table, "a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got["published"] != true {
		t.Errorf("published = %v, want true", got["published"])
	}
	data, ok := got["data"].(map[string]any)
	if !ok || data["title"] != "First" {
		t.Errorf("data = %#v", got["data"])
	}
	if got["size"] != nil {
		t.Errorf("size = %v, want nil", got["size"])
	}

	got, err = store.Get(ctx, table, "b")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got["size"] != int64(12) || got["published"] != false {
		t.Errorf("row b = %#v", got)
	}

	if _, err := store.Get(ctx, table, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpsertUpdateDelete(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	table := testTable()

	row := schema.Row{"id": "a", "collection": "blog", "slug": "first", "published": true}
	if err := store.Upsert(ctx, table, row); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	row["slug"] = "renamed"
	if err := store.Upsert(ctx, table, row); err != nil {
		t.Fatalf("second Upsert() failed: %v", err)
	}

	if err := store.UpdateByKey(ctx, table, "a", schema.Row{"size": 99, "unknown": "ignored"}); err != nil {
		t.Fatalf("UpdateByKey() failed: %v", err)
	}

	got, err := store.Get(ctx, table, "a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got["slug"] != "renamed" || got["size"] != int64(99) {
		t.Errorf("row = %#v", got)
	}

	if err := store.DeleteByKey(ctx, table, "a"); err != nil {
		t.Fatalf("DeleteByKey() failed: %v", err)
	}
	if err := store.DeleteByKey(ctx, table, "a"); err != nil {
		t.Errorf("DeleteByKey() should be idempotent: %v", err)
	}
	if n, _ := store.Count(ctx, table); n != 0 {
		t.Errorf("Count() = %d after delete, want 0", n)
	}
}

func TestTx_RollbackOnError(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	table := testTable()

	boom := errors.New("boom")
	err := store.Tx(ctx, func(w Writer) error {
		if err := w.Insert(ctx, table, schema.Row{"id": "a", "collection": "blog", "slug": "x", "published": true}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Tx() error = %v, want boom", err)
	}
	if n, _ := store.Count(ctx, table); n != 0 {
		t.Errorf("Count() = %d after rollback, want 0", n)
	}

	err = store.Tx(ctx, func(w Writer) error {
		return w.Insert(ctx, table, schema.Row{"id": "a", "collection": "blog", "slug": "x", "published": true})
	})
	if err != nil {
		t.Fatalf("Tx() failed: %v", err)
	}
	if n, _ := store.Count(ctx, table); n != 1 {
		t.Errorf("Count() = %d after commit, want 1", n)
	}
}

func TestCreateTableSQL(t *testing.T) {
	stmts := CreateTableSQL(testTable())
	if len(stmts) != 2 {
		t.Fatalf("CreateTableSQL() returned %d statements, want table + 1 index", len(stmts))
	}
	want := `CREATE INDEX IF NOT EXISTS "idx_entries_collection" ON "entries"("collection")`
	if stmts[1] != want {
		t.Errorf("index statement = %s, want %s", stmts[1], want)
	}
}

func TestDeleteWhere(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	table := testTable()

	rows := []schema.Row{
		{"id": "a", "collection": "blog", "slug": "one", "published": true},
		{"id": "b", "collection": "blog", "slug": "two", "published": true},
		{"id": "c", "collection": "pages", "slug": "one", "published": true},
	}
	if err := store.BulkInsert(ctx, table, rows); err != nil {
		t.Fatalf("BulkInsert() failed: %v", err)
	}

	n, err := store.DeleteWhere(ctx, table, schema.Row{"collection": "blog", "slug": "one"})
	if err != nil {
		t.Fatalf("DeleteWhere() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteWhere() removed %d rows, want 1", n)
	}

	if _, err := store.DeleteWhere(ctx, table, schema.Row{"nope": 1}); err == nil {
		t.Error("DeleteWhere() with unknown column should fail")
	}
	if n, _ := store.Count(ctx, table); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}
