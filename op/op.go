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

// Package op defines the Operation and OperationResponse types shared by
// the row encoder, the tablet router, and the session state machine.
package op

import (
	"time"

	"github.com/google/uuid"
	"github.com/tabletstore/tabletclient/schema"
	"github.com/tabletstore/tabletclient/status"
)

// ChangeType tags a row mutation. The four application-facing values
// come first; the remaining five are encoder-only pseudo-rows used to
// describe range-partition bounds at table-creation time (§4.1).
type ChangeType int

const (
	INSERT ChangeType = iota
	UPDATE
	UPSERT
	DELETE

	SPLIT_ROW
	RANGE_LOWER_BOUND
	RANGE_UPPER_BOUND
	EXCLUSIVE_RANGE_LOWER_BOUND
	INCLUSIVE_RANGE_UPPER_BOUND
)

func (c ChangeType) String() string {
	switch c {
	case INSERT:
		return "INSERT"
	case UPDATE:
		return "UPDATE"
	case UPSERT:
		return "UPSERT"
	case DELETE:
		return "DELETE"
	case SPLIT_ROW:
		return "SPLIT_ROW"
	case RANGE_LOWER_BOUND:
		return "RANGE_LOWER_BOUND"
	case RANGE_UPPER_BOUND:
		return "RANGE_UPPER_BOUND"
	case EXCLUSIVE_RANGE_LOWER_BOUND:
		return "EXCLUSIVE_RANGE_LOWER_BOUND"
	case INCLUSIVE_RANGE_UPPER_BOUND:
		return "INCLUSIVE_RANGE_UPPER_BOUND"
	default:
		return "UNKNOWN"
	}
}

// IsRowMutation reports whether c is one of the four application-facing
// change types, as opposed to an encoder-only range-partition pseudo-row.
func (c ChangeType) IsRowMutation() bool { return c >= INSERT && c <= DELETE }

// Response carries the server's verdict on one applied row: a server
// timestamp (for CLIENT_PROPAGATED consistency), the UUID of the tablet
// server that handled it, and possibly a RowError.
type Response struct {
	Timestamp      int64
	TabletServerID uuid.UUID
	RowError       *status.RowError
}

// HasRowError reports whether the response carries a row-level error.
func (r *Response) HasRowError() bool { return r.RowError != nil }

// result is delivered exactly once through an Operation's completion slot.
type result struct {
	resp *Response
	err  error
}

// Operation is a single row mutation awaiting or having completed
// dispatch. Once Apply hands an Operation to a session, the Row is
// frozen and Complete/Fail may be called exactly once by whichever
// component (sync path, Batch, or row-level lookup failure) resolves it.
type Operation struct {
	Table  *schema.Table
	Row    *schema.PartialRow
	Change ChangeType

	// IgnoreDuplicateRows is copied from the session/config at the
	// moment the op is frozen, per §4.6 "apply timeout/consistency/
	// ignore-duplicate settings".
	IgnoreDuplicateRows bool
	// TimeoutMS is the per-op (sync) or per-batch (async) deadline
	// budget, also copied at freeze time.
	TimeoutMS int

	// SubmittedAt records when Apply froze the row; used by tests and
	// diagnostics to measure buffer residency, not by the core logic.
	SubmittedAt time.Time

	done chan result
}

// NewOperation builds an Operation in the unfrozen state.
func NewOperation(table *schema.Table, row *schema.PartialRow, change ChangeType) *Operation {
	return &Operation{
		Table:  table,
		Row:    row,
		Change: change,
		done:   make(chan result, 1),
	}
}

// Freeze validates the row's key invariants and marks it read-only. It
// is a programmer error to freeze a row twice or one that fails
// validation.
func (o *Operation) Freeze() error {
	if o.Row.Frozen() {
		return &status.ProgrammerError{Msg: "operation already applied; row is frozen"}
	}
	if o.Change.IsRowMutation() {
		if err := o.Row.ValidateKeys(); err != nil {
			return &status.ProgrammerError{Msg: err.Error()}
		}
	}
	o.Row.Freeze()
	o.SubmittedAt = time.Now()
	return nil
}

// Complete resolves the operation successfully.
func (o *Operation) Complete(resp *Response) {
	select {
	case o.done <- result{resp: resp}:
	default:
	}
}

// Fail resolves the operation with a transport/programmer-level error
// (as opposed to a row-level error, which is delivered via Complete with
// a Response carrying RowError).
func (o *Operation) Fail(err error) {
	select {
	case o.done <- result{err: err}:
	default:
	}
}

// Wait blocks until the operation completes and returns its result.
func (o *Operation) Wait() (*Response, error) {
	r := <-o.done
	return r.resp, r.err
}
