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

// Package rpc defines the write-transport contract consumed by the
// session core (§6). Framing, multiplexing, reconnection, and
// authentication are out of scope (§1); this package only describes the
// shape of a request/response pair and a couple of small ambient
// helpers (payload fingerprinting, optional compression) that a real
// transport implementation would want.
package rpc

import (
	"context"
	"time"

	"github.com/tabletstore/tabletclient/rowcodec"
)

// ExternalConsistencyMode is the contract between client writes and
// subsequent reads (§4.6, GLOSSARY).
type ExternalConsistencyMode int

const (
	ClientPropagated ExternalConsistencyMode = iota
	CommitWait
)

// WriteRequest is what the session hands to a Transport for one Batch.
type WriteRequest struct {
	// Service is always "Write" for tablet-server RPCs (§6).
	Service string
	TableID  string
	TabletID string

	Rows *rowcodec.RowOperations

	Consistency         ExternalConsistencyMode
	PropagatedTimestamp int64 // 0 if none

	Deadline time.Time

	// IgnoreDuplicateRows is carried so a Transport implementation that
	// wants to log or meter duplicate suppression can see the setting;
	// the suppression decision itself is made by Batch (C4), not here.
	IgnoreDuplicateRows bool
}

// RowStatus is one row's outcome as reported in a write response (§6).
type RowStatus struct {
	RowIndex int
	OK       bool
	Code     int    // server-defined; translated to status.Code by the caller
	Message  string
}

// WriteResponse is a tablet server's reply to a WriteRequest.
type WriteResponse struct {
	// WriteTimestamp is propagated to subsequent CLIENT_PROPAGATED reads
	// when greater than zero (§4.4).
	WriteTimestamp int64
	TabletServerID string // parsed into a uuid.UUID by the caller
	Rows           []RowStatus
}

// Transport is the external RPC transport (§6), implemented outside
// this module. The session core only ever calls Send and the two
// accessor methods.
type Transport interface {
	Send(ctx context.Context, req *WriteRequest) (*WriteResponse, error)

	// UpdateLastPropagatedTimestamp records the latest write timestamp
	// observed, so a subsequent CLIENT_PROPAGATED read can wait for it.
	UpdateLastPropagatedTimestamp(ts int64)

	// DefaultOperationTimeout returns the transport's own default
	// per-operation timeout, used when a session is not otherwise
	// configured with one.
	DefaultOperationTimeout() time.Duration
}
