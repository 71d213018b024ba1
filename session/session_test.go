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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tabletstore/tabletclient/internal/faketablet"
	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/schema"
	"github.com/tabletstore/tabletclient/status"
)

func testTable(id string) *schema.Table {
	sch := schema.Schema{
		Columns: []schema.Column{
			{Name: "key", Type: schema.INT32, IsKey: true},
			{Name: "value", Type: schema.STRING},
		},
		NumKeyColumns: 1,
	}
	t := &schema.Table{
		ID:   id,
		Name: "t_" + id,
		Schema: sch,
		Partition: schema.PartitionSchema{
			Range: schema.RangePartitionSchema{ColumnIndexes: []int{0}},
		},
	}
	faketablet.WithSchema(id, &t.Schema)
	return t
}

func insertOp(t *testing.T, table *schema.Table, key int32, value string) *op.Operation {
	t.Helper()
	row := schema.NewPartialRow(&table.Schema)
	if err := row.SetInt32(0, key); err != nil {
		t.Fatalf("SetInt32: %v", err)
	}
	if err := row.SetString(1, value); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	return op.NewOperation(table, row, op.INSERT)
}

// keyBytes mirrors partition.Compute's order-preserving encoding for an
// INT32 range column: big-endian with the sign bit flipped.
func keyBytes(key int32) []byte {
	u := uint32(key) ^ 0x80000000
	return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}

// TestApplySync covers S1: a single synchronous insert completes with no
// row error and a nonzero server timestamp.
func TestApplySync(t *testing.T) {
	table := testTable("T1")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0"})
	transport := faketablet.NewTransport()
	s := New(transport, router)

	o := insertOp(t, table, 1, "hello")
	handle, err := s.Apply(context.Background(), o)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	resp, err := handle.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if resp.HasRowError() {
		t.Fatalf("unexpected row error: %v", resp.RowError)
	}
	if resp.Timestamp == 0 {
		t.Fatalf("expected a nonzero write timestamp")
	}
}

// TestDuplicateSuppressed covers S2: inserting the same key twice under
// IgnoreDuplicateRows yields no row error on either insert.
func TestDuplicateSuppressed(t *testing.T) {
	table := testTable("T2")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0"})
	transport := faketablet.NewTransport()
	s := New(transport, router, WithIgnoreDuplicateRows(true))

	for i := 0; i < 2; i++ {
		o := insertOp(t, table, 7, "dup")
		handle, err := s.Apply(context.Background(), o)
		if err != nil {
			t.Fatalf("Apply #%d: %v", i, err)
		}
		resp, err := handle.Wait()
		if err != nil {
			t.Fatalf("Wait #%d: %v", i, err)
		}
		if resp.HasRowError() {
			t.Fatalf("Apply #%d: unexpected row error: %v", i, resp.RowError)
		}
	}
}

// TestDuplicateNotSuppressed is the control for TestDuplicateSuppressed:
// without IgnoreDuplicateRows, the second insert reports AlreadyPresent.
func TestDuplicateNotSuppressed(t *testing.T) {
	table := testTable("T3")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0"})
	transport := faketablet.NewTransport()
	s := New(transport, router)

	for i := 0; i < 2; i++ {
		o := insertOp(t, table, 9, "dup")
		handle, err := s.Apply(context.Background(), o)
		if err != nil {
			t.Fatalf("Apply #%d: %v", i, err)
		}
		resp, err := handle.Wait()
		if err != nil {
			t.Fatalf("Wait #%d: %v", i, err)
		}
		if i == 0 && resp.HasRowError() {
			t.Fatalf("first insert: unexpected row error: %v", resp.RowError)
		}
		if i == 1 {
			if !resp.HasRowError() || resp.RowError.Code != status.CodeAlreadyPresent {
				t.Fatalf("second insert: got %v, want AlreadyPresent", resp.RowError)
			}
		}
	}
}

// TestNonCoveredRange covers S3: a key outside every tablet's range
// surfaces as a row-level NotFound, not a failed Apply call.
func TestNonCoveredRange(t *testing.T) {
	table := testTable("T4")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0", Upper: keyBytes(5)})
	transport := faketablet.NewTransport()
	s := New(transport, router)

	o := insertOp(t, table, 100, "out of range")
	handle, err := s.Apply(context.Background(), o)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	resp, err := handle.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !resp.HasRowError() || resp.RowError.Code != status.CodeNotFound {
		t.Fatalf("got %v, want a NotFound row error", resp.RowError)
	}
}

// TestManualFlushBufferFull checks ManualFlush's buffer limit: once the
// active buffer holds MutationBufferSpace operations, Apply rejects
// further operations with IllegalState until a Flush runs.
func TestManualFlushBufferFull(t *testing.T) {
	table := testTable("T5")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0"})
	transport := faketablet.NewTransport()
	s := New(transport, router, WithFlushMode(ManualFlush), WithMutationBufferSpace(1))

	o1 := insertOp(t, table, 1, "a")
	if _, err := s.Apply(context.Background(), o1); err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	o2 := insertOp(t, table, 2, "b")
	_, err := s.Apply(context.Background(), o2)
	var illegal *status.IllegalState
	if !errors.As(err, &illegal) {
		t.Fatalf("second Apply: got %v, want *status.IllegalState", err)
	}

	future := s.Flush(context.Background())
	if _, err := future.Wait(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if _, err := s.Apply(context.Background(), o2); err != nil {
		t.Fatalf("Apply after flush: %v", err)
	}
}

// TestBackgroundTimerFlush covers S5: a single buffered op under
// AutoFlushBackground is flushed by its scheduled timer without a
// manual Flush call, and a subsequent manual Flush on an already-empty
// session is a fast no-op.
func TestBackgroundTimerFlush(t *testing.T) {
	table := testTable("T6")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0"})
	transport := faketablet.NewTransport()
	s := New(transport, router,
		WithFlushMode(AutoFlushBackground),
		WithFlushInterval(20*time.Millisecond),
	)

	o := insertOp(t, table, 3, "timed")
	handle, err := s.Apply(context.Background(), o)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	resp, err := handle.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if resp.HasRowError() {
		t.Fatalf("unexpected row error: %v", resp.RowError)
	}

	future := s.Flush(context.Background())
	if _, err := future.Wait(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

// TestFlushOrderPreserved covers S6: operations routed to two different
// tablets within one buffer generation are all reflected in the
// flush's composite response list, indexed by their original Apply order.
func TestFlushOrderPreserved(t *testing.T) {
	table := testTable("T7")
	router := faketablet.NewRouter(
		faketablet.RangeBound{TabletID: "tablet-lo", Upper: keyBytes(50)},
		faketablet.RangeBound{TabletID: "tablet-hi"},
	)
	transport := faketablet.NewTransport()
	s := New(transport, router, WithFlushMode(ManualFlush), WithMutationBufferSpace(10))

	keys := []int32{1, 60, 2, 70}
	ops := make([]*op.Operation, len(keys))
	for i, k := range keys {
		ops[i] = insertOp(t, table, k, fmt.Sprintf("v%d", k))
		if _, err := s.Apply(context.Background(), ops[i]); err != nil {
			t.Fatalf("Apply(%d): %v", k, err)
		}
	}

	future := s.Flush(context.Background())
	responses, err := future.Wait()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(responses) != len(keys) {
		t.Fatalf("got %d responses, want %d", len(responses), len(keys))
	}
	for i, resp := range responses {
		if resp.HasRowError() {
			t.Errorf("response %d: unexpected row error: %v", i, resp.RowError)
		}
	}
	for i, o := range ops {
		got, err := o.Wait()
		if err != nil {
			t.Fatalf("Wait(%d): %v", keys[i], err)
		}
		if got != responses[i] {
			t.Errorf("response %d is not the response of the operation applied at position %d", i, i)
		}
	}
}

// TestCloseIdempotent covers "Close() after Close() is a no-op".
func TestCloseIdempotent(t *testing.T) {
	table := testTable("T8")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0"})
	transport := faketablet.NewTransport()
	s := New(transport, router)

	o := insertOp(t, table, 1, "x")
	if _, err := s.Apply(context.Background(), o); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := s.Close(context.Background()).Wait(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if _, err := s.Close(context.Background()).Wait(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// TestConfigureRejectedWhilePending ensures a reconfiguration attempt
// fails while operations are buffered, per §4.6.
func TestConfigureRejectedWhilePending(t *testing.T) {
	table := testTable("T9")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0"})
	transport := faketablet.NewTransport()
	s := New(transport, router, WithFlushMode(ManualFlush), WithMutationBufferSpace(10))

	o := insertOp(t, table, 1, "pending")
	if _, err := s.Apply(context.Background(), o); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	err := s.Configure(WithMutationBufferSpace(20))
	var programmer *status.ProgrammerError
	if !errors.As(err, &programmer) {
		t.Fatalf("Configure while pending: got %v, want *status.ProgrammerError", err)
	}

	if _, err := s.Flush(context.Background()).Wait(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Configure(WithMutationBufferSpace(20)); err != nil {
		t.Fatalf("Configure after flush: %v", err)
	}
}

// TestGetPendingErrors covers C7: a row-level error observed during a
// background flush is queued and drained exactly once.
func TestGetPendingErrors(t *testing.T) {
	table := testTable("T10")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0"})
	transport := faketablet.NewTransport()
	transport.RejectRow("tablet-0", 0)
	s := New(transport, router, WithFlushMode(AutoFlushBackground), WithMutationBufferSpace(1))

	o := insertOp(t, table, 1, "rejected")
	handle, err := s.Apply(context.Background(), o)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := handle.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if n := s.CountPendingErrors(); n != 1 {
		t.Fatalf("CountPendingErrors = %d, want 1", n)
	}
	entries, overflowed := s.GetPendingErrors()
	if overflowed {
		t.Fatalf("unexpected overflow")
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if s.CountPendingErrors() != 0 {
		t.Fatalf("errors were not drained")
	}
}

// TestPropagatedTimestampForwarded covers CLIENT_PROPAGATED external
// consistency (§4.4, GLOSSARY): the write timestamp returned by one
// flush must be carried as the next flush's WriteRequest.PropagatedTimestamp,
// and the very first flush must carry zero since nothing has been
// observed yet.
func TestPropagatedTimestampForwarded(t *testing.T) {
	table := testTable("T11")
	router := faketablet.NewRouter(faketablet.RangeBound{TabletID: "tablet-0"})
	transport := faketablet.NewTransport()
	s := New(transport, router, WithFlushMode(ManualFlush), WithMutationBufferSpace(10))

	o1 := insertOp(t, table, 1, "first")
	if _, err := s.Apply(context.Background(), o1); err != nil {
		t.Fatalf("Apply #1: %v", err)
	}
	if _, err := s.Flush(context.Background()).Wait(); err != nil {
		t.Fatalf("Flush #1: %v", err)
	}
	if got := transport.LastRequestPropagatedTimestamp(); got != 0 {
		t.Fatalf("first flush PropagatedTimestamp = %d, want 0", got)
	}
	firstWriteTS := transport.LastPropagatedTimestamp()
	if firstWriteTS == 0 {
		t.Fatalf("expected a nonzero write timestamp from the first flush")
	}

	o2 := insertOp(t, table, 2, "second")
	if _, err := s.Apply(context.Background(), o2); err != nil {
		t.Fatalf("Apply #2: %v", err)
	}
	if _, err := s.Flush(context.Background()).Wait(); err != nil {
		t.Fatalf("Flush #2: %v", err)
	}
	if got := transport.LastRequestPropagatedTimestamp(); got != firstWriteTS {
		t.Fatalf("second flush PropagatedTimestamp = %d, want %d (first flush's write timestamp)", got, firstWriteTS)
	}
}
