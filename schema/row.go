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

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tabletstore/tabletclient/status"
)

// PartialRow is the set of column values an application has explicitly
// assigned on a row, prior to submitting it as an Operation. Once an
// Operation wraps a PartialRow and is handed to a session, the row is
// frozen: any further Set call fails with a *status.ProgrammerError.
type PartialRow struct {
	Schema *Schema

	set   []byte // one bit per column, column 0 in LSB of byte 0
	null  []byte // identical layout, only meaningful for nullable columns
	cells [][]byte
	// frozen is set once the owning Operation has been submitted to a
	// session; further mutation attempts are programmer errors.
	frozen bool
}

// NewPartialRow allocates a PartialRow bound to s.
func NewPartialRow(s *Schema) *PartialRow {
	n := s.BitSetBytes()
	return &PartialRow{
		Schema: s,
		set:    make([]byte, n),
		null:   make([]byte, n),
		cells:  make([][]byte, len(s.Columns)),
	}
}

// Frozen reports whether the row has been submitted to a session and may
// no longer be mutated.
func (r *PartialRow) Frozen() bool { return r.frozen }

// Freeze marks the row read-only. Called exactly once, by Apply.
func (r *PartialRow) Freeze() { r.frozen = true }

func bitSet(bitmap []byte, i int) bool { return bitmap[i/8]&(1<<uint(i%8)) != 0 }
func bitOr(bitmap []byte, i int)       { bitmap[i/8] |= 1 << uint(i%8) }
func bitClear(bitmap []byte, i int)    { bitmap[i/8] &^= 1 << uint(i%8) }

// IsSet reports whether column i has been assigned a value.
func (r *PartialRow) IsSet(i int) bool { return bitSet(r.set, i) }

// IsNull reports whether column i has been explicitly set to null.
func (r *PartialRow) IsNull(i int) bool { return bitSet(r.null, i) }

func (r *PartialRow) checkWritable(i int) error {
	if r.frozen {
		return status.NewProgrammerError("partial row: cannot mutate a frozen row")
	}
	if i < 0 || i >= len(r.Schema.Columns) {
		return fmt.Errorf("partial row: column index %d out of range", i)
	}
	return nil
}

// SetNull marks column i as explicitly null. It is a programmer error
// (surfaced via the returned error) to null a non-nullable column.
func (r *PartialRow) SetNull(i int) error {
	if err := r.checkWritable(i); err != nil {
		return err
	}
	col := r.Schema.Columns[i]
	if !col.IsNullable {
		return fmt.Errorf("partial row: column %q is not nullable", col.Name)
	}
	bitOr(r.set, i)
	bitOr(r.null, i)
	r.cells[i] = nil
	return nil
}

func (r *PartialRow) setFixed(i int, want Type, buf []byte) error {
	if err := r.checkWritable(i); err != nil {
		return err
	}
	col := r.Schema.Columns[i]
	if col.Type != want {
		return fmt.Errorf("partial row: column %q has type %v, not %v", col.Name, col.Type, want)
	}
	bitOr(r.set, i)
	bitClear(r.null, i)
	r.cells[i] = buf
	return nil
}

func (r *PartialRow) SetBool(i int, v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	return r.setFixed(i, BOOL, []byte{b})
}

func (r *PartialRow) SetInt8(i int, v int8) error { return r.setFixed(i, INT8, []byte{byte(v)}) }

func (r *PartialRow) SetInt16(i int, v int16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(v))
	return r.setFixed(i, INT16, buf)
}

func (r *PartialRow) SetInt32(i int, v int32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return r.setFixed(i, INT32, buf)
}

func (r *PartialRow) SetInt64(i int, v int64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return r.setFixed(i, INT64, buf)
}

func (r *PartialRow) SetFloat32(i int, v float32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return r.setFixed(i, FLOAT, buf)
}

func (r *PartialRow) SetFloat64(i int, v float64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return r.setFixed(i, DOUBLE, buf)
}

// SetUnixTimeMicros sets a UNIXTIME_MICROS column to the given number of
// microseconds since the Unix epoch.
func (r *PartialRow) SetUnixTimeMicros(i int, micros int64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(micros))
	return r.setFixed(i, UNIXTIME_MICROS, buf)
}

func (r *PartialRow) setVariable(i int, want Type, v []byte) error {
	if err := r.checkWritable(i); err != nil {
		return err
	}
	col := r.Schema.Columns[i]
	if col.Type != want {
		return fmt.Errorf("partial row: column %q has type %v, not %v", col.Name, col.Type, want)
	}
	bitOr(r.set, i)
	bitClear(r.null, i)
	cell := make([]byte, len(v))
	copy(cell, v)
	r.cells[i] = cell
	return nil
}

func (r *PartialRow) SetString(i int, v string) error { return r.setVariable(i, STRING, []byte(v)) }
func (r *PartialRow) SetBinary(i int, v []byte) error { return r.setVariable(i, BINARY, v) }

// Cell returns the raw cell bytes for column i, or nil if unset/null.
func (r *PartialRow) Cell(i int) []byte { return r.cells[i] }

// ValidateKeys checks §3's PartialRow invariants: every primary-key
// column must be set and non-null, and a column marked null must also
// be marked set (the latter is structurally guaranteed by SetNull, but
// checked here in case of direct bitmap manipulation in tests).
func (r *PartialRow) ValidateKeys() error {
	for i := 0; i < r.Schema.NumKeyColumns; i++ {
		if !r.IsSet(i) {
			return fmt.Errorf("partial row: primary-key column %q is not set", r.Schema.Columns[i].Name)
		}
		if r.IsNull(i) {
			return fmt.Errorf("partial row: primary-key column %q must not be null", r.Schema.Columns[i].Name)
		}
	}
	for i := range r.Schema.Columns {
		if r.IsNull(i) && !r.IsSet(i) {
			return fmt.Errorf("partial row: column %q marked null but not set", r.Schema.Columns[i].Name)
		}
	}
	return nil
}
