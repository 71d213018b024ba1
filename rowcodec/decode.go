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
	"encoding/binary"
	"fmt"

	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/schema"
)

// DecodedRow is one decoded row: its change-type tag and, for each
// column, whether it was set/null and its raw cell bytes (a zero-copy
// view into the original Rows/Indirect buffers, per the design notes on
// zero-copy slices).
type DecodedRow struct {
	Change op.ChangeType
	Set    []bool
	Null   []bool
	Cells  [][]byte
}

// Decode reverses EncodeOperations against the same schema that produced
// ro. It exists to support the round-trip testable properties in §8; the
// production write path never needs to decode its own output.
func Decode(ro *RowOperations, sch *schema.Schema) ([]DecodedRow, error) {
	if ro == nil {
		return nil, nil
	}
	bitsetBytes := sch.BitSetBytes()
	hasNulls := sch.HasNullables()

	buf := ro.Rows
	out := make([]DecodedRow, 0, ro.NumRows)
	for len(buf) > 0 {
		if len(buf) < 1+bitsetBytes {
			return nil, fmt.Errorf("rowcodec: truncated row header")
		}
		dr := DecodedRow{
			Change: op.ChangeType(buf[0]),
			Set:    make([]bool, len(sch.Columns)),
			Null:   make([]bool, len(sch.Columns)),
			Cells:  make([][]byte, len(sch.Columns)),
		}
		setBits := buf[1 : 1+bitsetBytes]
		buf = buf[1+bitsetBytes:]

		var nullBits []byte
		if hasNulls {
			if len(buf) < bitsetBytes {
				return nil, fmt.Errorf("rowcodec: truncated nulls bitset")
			}
			nullBits = buf[:bitsetBytes]
			buf = buf[bitsetBytes:]
		}

		for i, col := range sch.Columns {
			isSet := setBits[i/8]&(1<<uint(i%8)) != 0
			dr.Set[i] = isSet
			if !isSet {
				continue
			}
			isNull := hasNulls && nullBits[i/8]&(1<<uint(i%8)) != 0
			dr.Null[i] = isNull
			if isNull {
				continue
			}
			if col.Type.IsVariableLength() {
				if len(buf) < 16 {
					return nil, fmt.Errorf("rowcodec: truncated indirect pointer for column %q", col.Name)
				}
				off := binary.LittleEndian.Uint64(buf[0:8])
				length := binary.LittleEndian.Uint64(buf[8:16])
				buf = buf[16:]
				if off+length > uint64(len(ro.Indirect)) {
					return nil, fmt.Errorf("rowcodec: indirect pointer for column %q out of range", col.Name)
				}
				dr.Cells[i] = ro.Indirect[off : off+length]
			} else {
				w := col.Type.FixedWidth()
				if len(buf) < w {
					return nil, fmt.Errorf("rowcodec: truncated fixed cell for column %q", col.Name)
				}
				dr.Cells[i] = buf[:w]
				buf = buf[w:]
			}
		}
		out = append(out, dr)
	}
	return out, nil
}
