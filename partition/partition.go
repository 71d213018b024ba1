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

// Package partition derives a tablet-routing key from a row and a
// table's partition schema (§4.2). Hash-partition buckets are computed
// with github.com/dchest/siphash, the same keyed hash primitive the
// reference codebase uses for its vectorized row-hashing paths
// (vm/interphash.go, ion/zion/hash.go), rather than a hand-rolled
// FNV/CRC.
package partition

import (
	"encoding/binary"

	"github.com/dchest/siphash"
	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/schema"
)

// Key is the concatenated, order-preserving-over-range partition key
// described in §4.2 and §4.3: the hash-partition buckets (one 4-byte
// big-endian group id per hash component) followed by the encoded
// prefix of the range-partition columns.
type Key []byte

// Compute builds the partition key for o's row against t's partition
// schema.
func Compute(t *schema.Table, o *op.Operation) (Key, error) {
	var key []byte
	for _, hp := range t.Partition.Hash {
		bucket, err := hashBucket(o, hp)
		if err != nil {
			return nil, err
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], bucket)
		key = append(key, buf[:]...)
	}
	for _, ci := range t.Partition.Range.ColumnIndexes {
		key = append(key, encodeRangeComponent(o.Row, ci, t.Schema.Columns[ci])...)
	}
	return key, nil
}

func hashBucket(o *op.Operation, hp schema.HashPartitionSchema) (uint32, error) {
	var buf []byte
	for _, ci := range hp.ColumnIndexes {
		buf = append(buf, o.Row.Cell(ci)...)
	}
	seed := uint64(hp.Seed)
	h := siphash.Hash(seed, seed, buf)
	if hp.NumBuckets == 0 {
		return 0, nil
	}
	return uint32(h % uint64(hp.NumBuckets)), nil
}

// encodeRangeComponent re-encodes column ci's cell so that unsigned
// byte-wise comparison of the resulting bytes matches the column's
// natural ordering (§4.2 "stable and order-preserving over the range
// portion"). The row encoder's own cell format is little-endian and, for
// signed types, two's-complement — neither is byte-wise comparable, so
// this is a distinct encoding from rowcodec's, not a copy of it.
func encodeRangeComponent(row *schema.PartialRow, ci int, col schema.Column) []byte {
	if !row.IsSet(ci) || row.IsNull(ci) {
		return nil
	}
	cell := row.Cell(ci)
	switch col.Type {
	case schema.BOOL:
		return append([]byte(nil), cell...)
	case schema.INT8:
		return []byte{cell[0] ^ 0x80}
	case schema.INT16:
		v := int16(binary.LittleEndian.Uint16(cell))
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(v)^0x8000)
		return buf[:]
	case schema.INT32:
		v := int32(binary.LittleEndian.Uint32(cell))
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(v)^0x80000000)
		return buf[:]
	case schema.INT64, schema.UNIXTIME_MICROS:
		v := int64(binary.LittleEndian.Uint64(cell))
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v)^0x8000000000000000)
		return buf[:]
	case schema.FLOAT:
		bits := binary.LittleEndian.Uint32(cell)
		bits = monotonicFloatBits32(bits)
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], bits)
		return buf[:]
	case schema.DOUBLE:
		bits := binary.LittleEndian.Uint64(cell)
		bits = monotonicFloatBits64(bits)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], bits)
		return buf[:]
	default: // STRING, BINARY: already byte-wise comparable as stored
		return cell
	}
}

// monotonicFloatBits32 maps IEEE-754 bits to an unsigned integer whose
// ordering matches the float's natural ordering: flip the sign bit for
// positive numbers, flip every bit for negative ones.
func monotonicFloatBits32(bits uint32) uint32 {
	if bits&0x80000000 != 0 {
		return ^bits
	}
	return bits | 0x80000000
}

func monotonicFloatBits64(bits uint64) uint64 {
	if bits&0x8000000000000000 != 0 {
		return ^bits
	}
	return bits | 0x8000000000000000
}
