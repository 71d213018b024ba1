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

// Package rowcodec packs a set of operations sharing one schema into the
// binary row-operations wire payload (§3, §4.1, §6): a dense row buffer
// plus an indirect-data buffer for variable-length cells. The growth
// discipline for the indirect buffer — preallocate, then grow by
// appending — follows ion.Buffer's approach to building TLV-encoded
// buffers incrementally.
package rowcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/schema"
)

// RowOperations is the encoded payload described in §3 and §6: two
// concatenated byte blobs, ready to be embedded in a write RPC.
type RowOperations struct {
	Rows     []byte
	Indirect []byte
	// NumRows is the number of rows encoded, for response fan-out.
	NumRows int
}

// EncodeOperations packs ops into a RowOperations payload. All ops must
// share the first element's schema: either the same *schema.Schema or
// one with identical columns and key count (§4.1's "enforced by the
// first element"). An empty input
// returns (nil, nil). Ordering is preserved; the result is independent
// of any map iteration, since ops is a plain slice.
func EncodeOperations(ops []*op.Operation) (*RowOperations, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	sch := &ops[0].Table.Schema
	bitsetBytes := sch.BitSetBytes()
	hasNulls := sch.HasNullables()

	rowWidth := fixedRowWidth(sch)
	perRowOverhead := 1 + bitsetBytes
	if hasNulls {
		perRowOverhead += bitsetBytes
	}
	rows := make([]byte, 0, len(ops)*(perRowOverhead+rowWidth))
	indirect := make([]byte, 0, 64*len(ops))

	for idx, o := range ops {
		if &o.Table.Schema != sch && !sameSchema(&o.Table.Schema, sch) {
			return nil, fmt.Errorf("rowcodec: operation %d has a different schema than operation 0", idx)
		}
		var err error
		rows, indirect, err = encodeOne(rows, indirect, o, sch, bitsetBytes, hasNulls)
		if err != nil {
			return nil, fmt.Errorf("rowcodec: encoding operation %d: %w", idx, err)
		}
	}
	return &RowOperations{Rows: rows, Indirect: indirect, NumRows: len(ops)}, nil
}

func sameSchema(a, b *schema.Schema) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return a.NumKeyColumns == b.NumKeyColumns
}

func fixedRowWidth(s *schema.Schema) int {
	w := 0
	for _, c := range s.Columns {
		w += c.Type.FixedWidth()
	}
	return w
}

func encodeOne(rows, indirect []byte, o *op.Operation, sch *schema.Schema, bitsetBytes int, hasNulls bool) ([]byte, []byte, error) {
	row := o.Row

	rows = append(rows, byte(o.Change))

	setOff := len(rows)
	rows = append(rows, make([]byte, bitsetBytes)...)

	var nullOff int
	if hasNulls {
		nullOff = len(rows)
		rows = append(rows, make([]byte, bitsetBytes)...)
	}

	for i, col := range sch.Columns {
		if !row.IsSet(i) {
			continue
		}
		rows[setOff+i/8] |= 1 << uint(i%8)
		if row.IsNull(i) {
			if !col.IsNullable {
				return rows, indirect, fmt.Errorf("column %q is not nullable", col.Name)
			}
			rows[nullOff+i/8] |= 1 << uint(i%8)
			continue
		}
		cell := row.Cell(i)
		if col.Type.IsVariableLength() {
			var hdr [16]byte
			binary.LittleEndian.PutUint64(hdr[0:8], uint64(len(indirect)))
			binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(cell)))
			rows = append(rows, hdr[:]...)
			indirect = append(indirect, cell...)
		} else {
			if len(cell) != col.Type.FixedWidth() {
				return rows, indirect, fmt.Errorf("column %q: cell is %d bytes, want %d", col.Name, len(cell), col.Type.FixedWidth())
			}
			rows = append(rows, cell...)
		}
	}
	return rows, indirect, nil
}
