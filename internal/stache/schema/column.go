package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrMissingColumn is returned when a non-nullable column without a default
// has no value.
var ErrMissingColumn = errors.New("missing value for required column")

// Row is one record in its column-keyed form.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ColumnType is the logical type of a column.
type ColumnType string

const (
	String   ColumnType = "string"
	Integer  ColumnType = "integer"
	Boolean  ColumnType = "boolean"
	DateTime ColumnType = "datetime"
	JSON     ColumnType = "json"
)

// Column describes a single table column.
type Column struct {
	Name       string
	Type       ColumnType
	Default    any
	HasDefault bool
	Nullable   bool
	Unique     bool
	Index      bool
}

// NewColumn returns a non-nullable column without a default.
func NewColumn(name string, typ ColumnType) Column {
	return Column{Name: name, Type: typ}
}

// WithDefault returns a copy of c with a default value.
func (c Column) WithDefault(v any) Column {
	c.Default = v
	c.HasDefault = true
	return c
}

// AsNullable returns a copy of c that accepts null.
func (c Column) AsNullable() Column {
	c.Nullable = true
	return c
}

// AsUnique returns a copy of c with a unique constraint.
func (c Column) AsUnique() Column {
	c.Unique = true
	return c
}

// Indexed returns a copy of c that gets its own index.
func (c Column) Indexed() Column {
	c.Index = true
	return c
}

// ToDB converts an in-memory value into the form stored in the table.
func (c Column) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch c.Type {
	case JSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s as json: %w", c.Name, err)
		}
		return string(data), nil

	case Boolean:
		b, err := toBool(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil

	case Integer:
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return n, nil

	case DateTime:
		return FormatTime(v), nil

	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		default:
			return fmt.Sprint(v), nil
		}
	}
}

// FromDB converts a stored value back into its in-memory form.
func (c Column) FromDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch c.Type {
	case JSON:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("failed to decode json column %s: %w", c.Name, err)
		}
		return out, nil
	case Boolean:
		return toBool(v)
	case Integer:
		return toInt(v)
	case DateTime:
		return FormatTime(v), nil
	default:
		return v, nil
	}
}

// FormatTime renders a datetime value as text. Strings pass through
// unchanged; times without a clock part render as a bare date.
func FormatTime(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	case *time.Time:
		if t == nil {
			return ""
		}
		return FormatTime(*t)
	default:
		return fmt.Sprint(v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("invalid boolean %q", b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("invalid boolean of type %T", v)
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d out of range", n)
		}
		return int64(n), nil
	case float64:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("invalid integer of type %T", v)
	}
}
