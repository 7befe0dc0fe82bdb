// Package schema describes the relational shape of cached records.
//
// # Overview
//
// Every record kind (entries, assets) is cached in one table. The table is
// described by a Table value: a name, the identity column, and an ordered
// list of Column definitions. The same Table is used to create the backing
// table, to fill in values a decoded file did not supply, and to convert
// values between their in-memory and stored forms.
//
// # Column Types
//
//   - String   - TEXT
//   - Integer  - INTEGER
//   - Boolean  - INTEGER (0/1), read back as bool
//   - DateTime - TEXT, kept in the form it was written ("2024-01-01")
//   - JSON     - TEXT holding a JSON document, read back as map[string]any
//
// # Default Resolution
//
// A decoded row must carry a value for every declared column before it is
// inserted. Resolve fills the gaps in this order:
//
//  1. the value already present in the row
//  2. the column default, when one is declared
//  3. null, when the column is nullable
//
// A column that satisfies none of these fails with ErrMissingColumn and the
// row is skipped by the loader.
//
// # Blueprints
//
// The column set actually used to build a table (kind columns plus driver
// and timestamp columns) is the blueprint of that kind. A Registry remembers
// the blueprint for each kind after the table is (re)built so later inserts
// and updates filter rows against the real column set:
//
//	reg := schema.NewRegistry()
//	reg.Register("entries", table)
//	bp, ok := reg.Blueprint("entries")
package schema
