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

package partition

import (
	"bytes"
	"sort"
	"testing"

	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/schema"
)

func rangeTable() *schema.Table {
	sch := schema.Schema{
		Columns: []schema.Column{
			{Name: "k", Type: schema.INT32, IsKey: true},
		},
		NumKeyColumns: 1,
	}
	return &schema.Table{
		ID:     "rt",
		Name:   "rt",
		Schema: sch,
		Partition: schema.PartitionSchema{
			Range: schema.RangePartitionSchema{ColumnIndexes: []int{0}},
		},
	}
}

// TestRangeKeyOrderPreserving checks that Compute's output, compared
// byte-wise, sorts the same way the underlying int32 values do —
// including across the negative/positive boundary, which a raw
// little-endian copy of the cell would get wrong.
func TestRangeKeyOrderPreserving(t *testing.T) {
	table := rangeTable()
	values := []int32{-1000, -1, 0, 1, 2, 1000, 1<<31 - 1, -(1 << 31)}

	type pair struct {
		v   int32
		key Key
	}
	pairs := make([]pair, len(values))
	for i, v := range values {
		row := schema.NewPartialRow(&table.Schema)
		if err := row.SetInt32(0, v); err != nil {
			t.Fatalf("SetInt32(%d): %v", v, err)
		}
		o := op.NewOperation(table, row, op.INSERT)
		key, err := Compute(table, o)
		if err != nil {
			t.Fatalf("Compute(%d): %v", v, err)
		}
		pairs[i] = pair{v: v, key: key}
	}

	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].key, pairs[j].key) < 0 })
	for i := 1; i < len(pairs); i++ {
		if pairs[i-1].v > pairs[i].v {
			t.Fatalf("byte order does not match numeric order: %v sorted by key gives %v before %v",
				values, pairs[i-1].v, pairs[i].v)
		}
	}
}

func TestHashBucketRange(t *testing.T) {
	sch := schema.Schema{
		Columns: []schema.Column{
			{Name: "k", Type: schema.STRING, IsKey: true},
		},
		NumKeyColumns: 1,
	}
	table := &schema.Table{
		ID: "ht", Name: "ht", Schema: sch,
		Partition: schema.PartitionSchema{
			Hash: []schema.HashPartitionSchema{{ColumnIndexes: []int{0}, NumBuckets: 8, Seed: 1}},
		},
	}
	for _, v := range []string{"a", "bb", "ccc", "dddd", "eeeee"} {
		row := schema.NewPartialRow(&table.Schema)
		if err := row.SetString(0, v); err != nil {
			t.Fatalf("SetString: %v", err)
		}
		o := op.NewOperation(table, row, op.INSERT)
		key, err := Compute(table, o)
		if err != nil {
			t.Fatalf("Compute(%q): %v", v, err)
		}
		if len(key) != 4 {
			t.Fatalf("Compute(%q): key is %d bytes, want 4 (one bucket group)", v, len(key))
		}
		bucket := uint32(key[0])<<24 | uint32(key[1])<<16 | uint32(key[2])<<8 | uint32(key[3])
		if bucket >= 8 {
			t.Fatalf("Compute(%q): bucket %d out of range [0,8)", v, bucket)
		}
	}
}
