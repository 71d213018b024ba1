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

package rpc

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/tabletstore/tabletclient/rowcodec"
)

// CompressThreshold is the Rows+Indirect byte size above which
// CompressRows bothers compressing at all; below it the zstd framing
// overhead isn't worth paying. Mirrors the size-gated compression
// strategy in ion/blockfmt/convert.go.
const CompressThreshold = 4096

var encoderPool = func() *zstd.Encoder {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(err) // only fails on invalid options, which are constant here
	}
	return enc
}()

// CompressRows compresses ro.Rows and ro.Indirect independently with
// zstd when the combined size exceeds CompressThreshold, returning the
// two (possibly compressed) blobs and whether compression was applied.
// A Transport implementation may use this before framing a WriteRequest
// on the wire; the session core itself never calls it.
func CompressRows(ro *rowcodec.RowOperations) (rows, indirect []byte, compressed bool) {
	if ro == nil {
		return nil, nil, false
	}
	if len(ro.Rows)+len(ro.Indirect) <= CompressThreshold {
		return ro.Rows, ro.Indirect, false
	}
	return encoderPool.EncodeAll(ro.Rows, nil), encoderPool.EncodeAll(ro.Indirect, nil), true
}

// Fingerprint returns a short, stable hash of a write request's payload,
// suitable for correlating client-side logs with server-side traces
// (e.g. "batch abcd1234 sent to tablet ..."). It uses blake2b, the same
// hash family the reference codebase uses for content-addressed naming
// (fsenv.go).
func Fingerprint(ro *rowcodec.RowOperations) string {
	if ro == nil {
		return ""
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // only fails for a keyed hash with a bad key; we pass nil
	}
	h.Write(ro.Rows)
	h.Write(ro.Indirect)
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}
