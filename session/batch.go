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

package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/rowcodec"
	"github.com/tabletstore/tabletclient/rpc"
	"github.com/tabletstore/tabletclient/schema"
	"github.com/tabletstore/tabletclient/status"
)

// batch is the per-tablet accumulator described in C4/§4.4: a table
// reference, the target tablet, the operations bound for it in
// submission order, and the ignore_duplicate_rows flag captured at
// batch-creation time.
type batch struct {
	table               *schema.Table
	tabletID            string
	ops                 []*op.Operation
	ignoreDuplicateRows bool
}

func newBatch(table *schema.Table, tabletID string, ops []*op.Operation, ignoreDuplicateRows bool) *batch {
	return &batch{table: table, tabletID: tabletID, ops: ops, ignoreDuplicateRows: ignoreDuplicateRows}
}

// send encodes the batch, dispatches it through transport, classifies
// the response (or synthesizes one on transport failure), completes
// every operation's future, and feeds the Error Collector when
// collectErrors is true (i.e. the owning session is in
// AutoFlushBackground, §4.4/§7). updateTS is called with the server's
// write timestamp on success, so the owning session can forward it on
// the next CLIENT_PROPAGATED write (§4.4, GLOSSARY).
func (b *batch) send(ctx context.Context, transport rpc.Transport, consistency rpc.ExternalConsistencyMode, propagatedTS int64, deadline time.Time, collector *errorCollector, collectErrors bool, updateTS func(int64)) []*op.Response {
	ro, err := rowcodec.EncodeOperations(b.ops)
	if err != nil {
		return b.fail(status.NewRowError(status.CodeInvalidArgument, "encoding batch: %v", err), collector, collectErrors)
	}

	req := &rpc.WriteRequest{
		Service:             "Write",
		TableID:             b.table.ID,
		TabletID:            b.tabletID,
		Rows:                ro,
		Consistency:         consistency,
		PropagatedTimestamp: propagatedTS,
		Deadline:            deadline,
		IgnoreDuplicateRows: b.ignoreDuplicateRows,
	}

	resp, err := transport.Send(ctx, req)
	if err != nil {
		return b.fail(status.NewRowError(status.CodeRuntimeError, "sending batch to tablet %s: %v", b.tabletID, err), collector, collectErrors)
	}

	if resp.WriteTimestamp > 0 {
		transport.UpdateLastPropagatedTimestamp(resp.WriteTimestamp)
		updateTS(resp.WriteTimestamp)
	}

	var serverID uuid.UUID
	if resp.TabletServerID != "" {
		if id, err := uuid.Parse(resp.TabletServerID); err == nil {
			serverID = id
		}
	}

	byIndex := make(map[int]rpc.RowStatus, len(resp.Rows))
	for _, rs := range resp.Rows {
		byIndex[rs.RowIndex] = rs
	}

	out := make([]*op.Response, len(b.ops))
	for i, o := range b.ops {
		r := &op.Response{Timestamp: resp.WriteTimestamp, TabletServerID: serverID}
		if rs, ok := byIndex[i]; ok && !rs.OK {
			code := translateCode(rs.Code)
			if b.ignoreDuplicateRows && code == status.CodeAlreadyPresent {
				// suppressed: treat as success (§4.4, §7)
			} else {
				r.RowError = &status.RowError{Code: code, Message: rs.Message, RowIndex: i}
				if collectErrors {
					collector.add(RowErrorEntry{Table: b.table.Name, TabletID: b.tabletID, Err: r.RowError})
				}
			}
		}
		out[i] = r
		o.Complete(r)
	}
	return out
}

// fail constructs a synthesized Response carrying sharedErr for every op
// in the batch (whole-RPC failure, §4.4), completes each operation, and
// optionally records the failure in the Error Collector.
func (b *batch) fail(sharedErr *status.RowError, collector *errorCollector, collectErrors bool) []*op.Response {
	out := make([]*op.Response, len(b.ops))
	for i, o := range b.ops {
		errCopy := *sharedErr
		errCopy.RowIndex = i
		r := &op.Response{RowError: &errCopy}
		out[i] = r
		if collectErrors {
			collector.add(RowErrorEntry{Table: b.table.Name, TabletID: b.tabletID, Err: r.RowError})
		}
		o.Complete(r)
	}
	return out
}

func translateCode(serverCode int) status.Code {
	switch serverCode {
	case 1:
		return status.CodeNotFound
	case 2:
		return status.CodeAlreadyPresent
	case 3:
		return status.CodeInvalidArgument
	default:
		return status.CodeRuntimeError
	}
}
