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

// Package status models the four kinds of failure a write session can
// produce: programmer errors, throttling, row-level errors, and
// batch-level (whole-RPC) errors. Each is a distinct type so callers can
// branch on it with errors.As instead of string-matching.
package status

import "fmt"

// Code classifies the origin of a row-level or batch-level error, mirroring
// the status codes a tablet server attaches to a per-row response.
type Code int

const (
	// CodeUnknown is the zero value; never produced deliberately.
	CodeUnknown Code = iota
	// CodeNotFound indicates the target row (or partition) does not exist,
	// including a partition key outside any tablet's covered range.
	CodeNotFound
	// CodeAlreadyPresent indicates an INSERT collided with an existing row.
	CodeAlreadyPresent
	// CodeInvalidArgument indicates a malformed or constraint-violating row.
	CodeInvalidArgument
	// CodeRuntimeError is a catch-all for transport, timeout, or
	// unclassified server-side failures.
	CodeRuntimeError
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyPresent:
		return "AlreadyPresent"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeRuntimeError:
		return "RuntimeError"
	default:
		return "Unknown"
	}
}

// ProgrammerError indicates caller misuse: a nil operation, a mutation
// attempted on an already-frozen row, or a configuration change attempted
// while operations are pending. The caller's state is left untouched.
type ProgrammerError struct {
	Msg string
}

func (e *ProgrammerError) Error() string { return "programmer error: " + e.Msg }

// NewProgrammerError builds a *ProgrammerError with a formatted message.
func NewProgrammerError(format string, args ...any) *ProgrammerError {
	return &ProgrammerError{Msg: fmt.Sprintf(format, args...)}
}

// Notifier is satisfied by a session flush-notification: a signal that
// fires exactly once when capacity is likely to have freed up.
type Notifier interface {
	// Done returns a channel that closes when the notification fires.
	Done() <-chan struct{}
}

// ServiceUnavailable is returned by Apply when both session buffers are
// full or flushing. It carries the notification the caller should await
// before retrying, so a throttled producer never needs to busy-wait.
type ServiceUnavailable struct {
	Msg    string
	Notify Notifier
}

func (e *ServiceUnavailable) Error() string { return "service unavailable: " + e.Msg }

// NewServiceUnavailable builds a *ServiceUnavailable carrying notify.
func NewServiceUnavailable(notify Notifier, format string, args ...any) *ServiceUnavailable {
	return &ServiceUnavailable{Msg: fmt.Sprintf(format, args...), Notify: notify}
}

// IllegalState indicates the session or buffer rejected an operation due
// to its current state (e.g. "buffer too big") rather than a programming
// mistake or a capacity condition that will clear on its own.
type IllegalState struct {
	Msg string
}

func (e *IllegalState) Error() string { return "illegal state: " + e.Msg }

// NewIllegalState builds an *IllegalState with a formatted message.
func NewIllegalState(format string, args ...any) *IllegalState {
	return &IllegalState{Msg: fmt.Sprintf(format, args...)}
}

// RowError is a per-row failure attached to an OperationResponse. It never
// fails the enclosing Apply/Flush call; it is delivered as data.
type RowError struct {
	Code    Code
	Message string
	// RowIndex is the position of the row within the RPC batch it was
	// sent in (whether the server returned the error or it was
	// synthesized for a failed batch), or -1 if the row never reached a
	// batch (e.g. a failed tablet lookup).
	RowIndex int
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row error (%s): %s", e.Code, e.Message)
}

// NewRowError builds a *RowError not associated with any particular RPC
// response (row_index -1), for locally-synthesized failures such as a
// non-covered-range lookup.
func NewRowError(code Code, format string, args ...any) *RowError {
	return &RowError{Code: code, Message: fmt.Sprintf(format, args...), RowIndex: -1}
}

// IsDuplicateKey reports whether err is a RowError carrying
// CodeAlreadyPresent, the condition IgnoreDuplicateRows suppresses.
func IsDuplicateKey(err error) bool {
	var re *RowError
	if ok := asRowError(err, &re); ok {
		return re.Code == CodeAlreadyPresent
	}
	return false
}

func asRowError(err error, target **RowError) bool {
	re, ok := err.(*RowError)
	if ok {
		*target = re
	}
	return ok
}
