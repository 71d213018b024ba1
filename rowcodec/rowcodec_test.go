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

package rowcodec

import (
	"bytes"
	"testing"

	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/schema"
)

func testTable() *schema.Table {
	s := schema.Schema{
		Columns: []schema.Column{
			{Name: "key", Type: schema.INT32, IsKey: true},
			{Name: "v", Type: schema.STRING, IsNullable: true},
			{Name: "n", Type: schema.INT64, IsNullable: true},
		},
		NumKeyColumns: 1,
	}
	return &schema.Table{ID: "t1", Name: "test", Schema: s}
}

func insertOp(t *testing.T, table *schema.Table, key int32, v string, hasV bool) *op.Operation {
	t.Helper()
	row := schema.NewPartialRow(&table.Schema)
	if err := row.SetInt32(0, key); err != nil {
		t.Fatal(err)
	}
	if hasV {
		if err := row.SetString(1, v); err != nil {
			t.Fatal(err)
		}
	} else {
		if err := row.SetNull(1); err != nil {
			t.Fatal(err)
		}
	}
	o := op.NewOperation(table, row, op.INSERT)
	if err := o.Freeze(); err != nil {
		t.Fatal(err)
	}
	return o
}

func TestEncodeEmpty(t *testing.T) {
	ro, err := EncodeOperations(nil)
	if err != nil || ro != nil {
		t.Fatalf("EncodeOperations(nil) = %v, %v; want nil, nil", ro, err)
	}
}

func TestRoundTrip(t *testing.T) {
	table := testTable()
	ops := []*op.Operation{
		insertOp(t, table, 1, "abc", true),
		insertOp(t, table, 2, "", false),
		insertOp(t, table, 3, "longer string value", true),
	}
	ro, err := EncodeOperations(ops)
	if err != nil {
		t.Fatal(err)
	}
	if ro.NumRows != 3 {
		t.Fatalf("NumRows = %d, want 3", ro.NumRows)
	}
	decoded, err := Decode(ro, &table.Schema)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 3 {
		t.Fatalf("decoded %d rows, want 3", len(decoded))
	}
	for i, o := range ops {
		d := decoded[i]
		if d.Change != o.Change {
			t.Errorf("row %d: change = %v, want %v", i, d.Change, o.Change)
		}
		for c := range table.Schema.Columns {
			if d.Set[c] != o.Row.IsSet(c) {
				t.Errorf("row %d col %d: set = %v, want %v", i, c, d.Set[c], o.Row.IsSet(c))
			}
			if d.Null[c] != o.Row.IsNull(c) {
				t.Errorf("row %d col %d: null = %v, want %v", i, c, d.Null[c], o.Row.IsNull(c))
			}
			if !d.Null[c] && d.Set[c] && !bytes.Equal(d.Cells[c], o.Row.Cell(c)) {
				t.Errorf("row %d col %d: cell = %x, want %x", i, c, d.Cells[c], o.Row.Cell(c))
			}
		}
	}
}

func TestRoundTripIdenticalRows(t *testing.T) {
	table := testTable()
	var ops []*op.Operation
	for i := 0; i < 5; i++ {
		ops = append(ops, insertOp(t, table, 42, "same", true))
	}
	ro, err := EncodeOperations(ops)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(ro, &table.Schema)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 5 {
		t.Fatalf("got %d rows, want 5", len(decoded))
	}
	for i := 1; i < len(decoded); i++ {
		if decoded[i].Change != decoded[0].Change {
			t.Fatalf("row %d change mismatch", i)
		}
		for c := range table.Schema.Columns {
			if !bytes.Equal(decoded[i].Cells[c], decoded[0].Cells[c]) {
				t.Fatalf("row %d col %d mismatch", i, c)
			}
		}
	}
}

func TestMixedSchemaRejected(t *testing.T) {
	table1 := testTable()
	table2 := testTable()
	table2.Schema.Columns = append([]schema.Column{}, table2.Schema.Columns...)
	table2.Schema.Columns[1].Type = schema.BINARY // divergent schema

	ops := []*op.Operation{
		insertOp(t, table1, 1, "abc", true),
	}
	row := schema.NewPartialRow(&table2.Schema)
	if err := row.SetInt32(0, 2); err != nil {
		t.Fatal(err)
	}
	if err := row.SetBinary(1, []byte("xyz")); err != nil {
		t.Fatal(err)
	}
	o2 := op.NewOperation(table2, row, op.INSERT)
	if err := o2.Freeze(); err != nil {
		t.Fatal(err)
	}
	ops = append(ops, o2)

	if _, err := EncodeOperations(ops); err == nil {
		t.Fatal("expected an error for mismatched schemas")
	}
}
