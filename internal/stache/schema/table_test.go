package schema

import (
	"errors"
	"testing"
	"time"
)

func testTable() Table {
	return Table{
		Name: "entries",
		Key:  "id",
		Columns: []Column{
			NewColumn("id", String).AsUnique(),
			NewColumn("slug", String),
			NewColumn("published", Boolean).WithDefault(true),
			NewColumn("date", DateTime).AsNullable(),
			NewColumn("data", JSON).AsNullable(),
		},
	}
}

func TestTable_Resolve(t *testing.T) {
	table := testTable()

	tests := []struct {
		name    string
		row     Row
		want    Row
		wantErr bool
	}{
		{
			name: "fills defaults and nulls",
			row:  Row{"id": "a", "slug": "hello"},
			want: Row{"id": "a", "slug": "hello", "published": true, "date": nil, "data": nil},
		},
		{
			name: "explicit values win",
			row:  Row{"id": "a", "slug": "hello", "published": false, "date": "2024-01-01"},
			want: Row{"id": "a", "slug": "hello", "published": false, "date": "2024-01-01", "data": nil},
		},
		{
			name: "null falls back to default",
			row:  Row{"id": "a", "slug": "hello", "published": nil},
			want: Row{"id": "a", "slug": "hello", "published": true, "date": nil, "data": nil},
		},
		{
			name: "unknown keys dropped",
			row:  Row{"id": "a", "slug": "hello", "title": "Hi"},
			want: Row{"id": "a", "slug": "hello", "published": true, "date": nil, "data": nil},
		},
		{
			name:    "required column missing",
			row:     Row{"id": "a"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Resolve(tt.row)
			if tt.wantErr {
				if !errors.Is(err, ErrMissingColumn) {
					t.Fatalf("Resolve() error = %v, want ErrMissingColumn", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Resolve() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Resolve()[%s] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestTable_With(t *testing.T) {
	table := testTable().With(Timestamps()...).With(NewColumn("slug", Integer))

	if len(table.Columns) != 7 {
		t.Fatalf("len(Columns) = %d, want 7", len(table.Columns))
	}
	slug, _ := table.Column("slug")
	if slug.Type != String {
		t.Errorf("slug type = %s, want existing definition kept", slug.Type)
	}
	if _, ok := table.Column("updated_at"); !ok {
		t.Error("updated_at column missing")
	}
	if len(testTable().Columns) != 5 {
		t.Error("With() modified the receiver")
	}
}

func TestColumn_Conversions(t *testing.T) {
	data := NewColumn("data", JSON)
	stored, err := data.ToDB(map[string]any{"title": "Hi"})
	if err != nil {
		t.Fatalf("ToDB() failed: %v", err)
	}
	if stored != `{"title":"Hi"}` {
		t.Errorf("ToDB(json) = %v", stored)
	}
	back, err := data.FromDB(stored)
	if err != nil {
		t.Fatalf("FromDB() failed: %v", err)
	}
	if m, ok := back.(map[string]any); !ok || m["title"] != "Hi" {
		t.Errorf("FromDB(json) = %#v", back)
	}

	published := NewColumn("published", Boolean)
	if v, _ := published.ToDB(true); v != int64(1) {
		t.Errorf("ToDB(true) = %v, want 1", v)
	}
	if v, _ := published.FromDB(int64(0)); v != false {
		t.Errorf("FromDB(0) = %v, want false", v)
	}

	size := NewColumn("size", Integer)
	if v, _ := size.ToDB(42); v != int64(42) {
		t.Errorf("ToDB(42) = %v", v)
	}
	if _, err := size.ToDB("forty"); err == nil {
		t.Error("ToDB(\"forty\") should fail")
	}

	date := NewColumn("date", DateTime)
	if v, _ := date.ToDB(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); v != "2024-01-01" {
		t.Errorf("ToDB(date) = %v", v)
	}
	if v, _ := date.ToDB(time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)); v != "2024-01-01 12:30:00" {
		t.Errorf("ToDB(datetime) = %v", v)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Blueprint("entries"); ok {
		t.Fatal("empty registry returned a blueprint")
	}

	reg.Register("entries", testTable())
	bp, ok := reg.Blueprint("entries")
	if !ok || bp.Name != "entries" {
		t.Fatalf("Blueprint() = %v, %v", bp, ok)
	}

	reg.Forget("entries")
	if _, ok := reg.Blueprint("entries"); ok {
		t.Error("Forget() left the blueprint behind")
	}
}
