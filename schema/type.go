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

// Package schema holds table descriptors, column types, and the
// PartialRow value applications fill in before submitting an operation.
package schema

import "fmt"

// Type is a column's on-wire type.
type Type int

const (
	BOOL Type = iota
	INT8
	INT16
	INT32
	INT64
	FLOAT
	DOUBLE
	UNIXTIME_MICROS
	STRING
	BINARY
)

func (t Type) String() string {
	switch t {
	case BOOL:
		return "BOOL"
	case INT8:
		return "INT8"
	case INT16:
		return "INT16"
	case INT32:
		return "INT32"
	case INT64:
		return "INT64"
	case FLOAT:
		return "FLOAT"
	case DOUBLE:
		return "DOUBLE"
	case UNIXTIME_MICROS:
		return "UNIXTIME_MICROS"
	case STRING:
		return "STRING"
	case BINARY:
		return "BINARY"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// IsVariableLength reports whether t is stored out-of-line in the
// indirect-data buffer rather than inline in the fixed row area.
func (t Type) IsVariableLength() bool {
	return t == STRING || t == BINARY
}

// FixedWidth returns the number of bytes t occupies in the fixed row
// area. Variable-length types occupy the 16-byte indirect pointer slot.
func (t Type) FixedWidth() int {
	switch t {
	case BOOL, INT8:
		return 1
	case INT16:
		return 2
	case INT32, FLOAT:
		return 4
	case INT64, DOUBLE, UNIXTIME_MICROS:
		return 8
	case STRING, BINARY:
		return 16 // (u64 offset, u64 length) indirect pointer
	default:
		panic(fmt.Sprintf("schema: unknown type %v", t))
	}
}

// Column describes one column of a table.
type Column struct {
	Name       string
	Type       Type
	IsKey      bool // part of the primary key
	IsNullable bool
}
