// Copyright (C) 2026 Tabletstore, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package schema

import "fmt"

// HashPartitionSchema describes one hash-partition component: a set of
// column indexes (into Schema.Columns) that are hashed together, a seed,
// and the number of buckets the hash is reduced into.
type HashPartitionSchema struct {
	ColumnIndexes []int
	NumBuckets    uint32
	Seed          uint32
}

// RangePartitionSchema lists the columns, in order, whose encoded prefix
// forms the range-partition component of a partition key.
type RangePartitionSchema struct {
	ColumnIndexes []int
}

// PartitionSchema is a table's full partitioning scheme: zero or more
// hash-partition components followed by an optional range component,
// matching how C2 builds a partition key (see partition.Compute).
type PartitionSchema struct {
	Hash  []HashPartitionSchema
	Range RangePartitionSchema
}

// Schema is a table's column layout, independent of any particular
// tablet assignment.
type Schema struct {
	Columns []Column
	// NumKeyColumns is the count of leading primary-key columns.
	// By convention primary-key columns are the first NumKeyColumns
	// entries of Columns, mirroring how tablet stores lay out keys.
	NumKeyColumns int
}

// NumNullable returns how many columns may be null, which determines
// whether the row encoder emits a nulls bitset at all.
func (s *Schema) NumNullable() int {
	n := 0
	for _, c := range s.Columns {
		if c.IsNullable {
			n++
		}
	}
	return n
}

// HasNullables reports whether any column is nullable.
func (s *Schema) HasNullables() bool { return s.NumNullable() > 0 }

// BitSetBytes returns the number of bytes needed to hold one bit per
// column (the columns-set bitset, and — identically sized — the
// optional nulls bitset).
func (s *Schema) BitSetBytes() int {
	return (len(s.Columns) + 7) / 8
}

// Validate checks internal consistency of the schema: key columns must
// come first and must not be nullable, and each column's IsKey flag must
// agree with its position relative to NumKeyColumns.
func (s *Schema) Validate() error {
	if s.NumKeyColumns <= 0 {
		return fmt.Errorf("schema: table must have at least one primary-key column")
	}
	if s.NumKeyColumns > len(s.Columns) {
		return fmt.Errorf("schema: NumKeyColumns %d exceeds column count %d", s.NumKeyColumns, len(s.Columns))
	}
	for i, c := range s.Columns {
		wantKey := i < s.NumKeyColumns
		if c.IsKey != wantKey {
			return fmt.Errorf("schema: column %q has IsKey=%v, but its position implies IsKey=%v (NumKeyColumns=%d)", c.Name, c.IsKey, wantKey, s.NumKeyColumns)
		}
		if wantKey && c.IsNullable {
			return fmt.Errorf("schema: primary-key column %q must not be nullable", c.Name)
		}
	}
	return nil
}

// ColumnByName returns the index of the named column, or -1 if absent.
func (s *Schema) ColumnByName(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Table is the descriptor an Operation references: a schema, a
// partitioning scheme, and identity used to route and label RPCs.
type Table struct {
	ID        string
	Name      string
	Schema    Schema
	Partition PartitionSchema
}
