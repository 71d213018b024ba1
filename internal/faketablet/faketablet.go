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

// Package faketablet provides an in-process tablet.Router and rpc.Transport
// double for driving session tests without a real cluster, matching the
// hand-written fakes used elsewhere in this codebase's test suites (no
// mocking framework).
package faketablet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabletstore/tabletclient/partition"
	"github.com/tabletstore/tabletclient/rowcodec"
	"github.com/tabletstore/tabletclient/rpc"
	"github.com/tabletstore/tabletclient/schema"
	"github.com/tabletstore/tabletclient/tablet"
)

// RangeBound describes one tablet's covered partition-key range: a
// half-open interval [Lower, Upper) compared lexicographically. A nil
// Upper means unbounded above.
type RangeBound struct {
	TabletID string
	Lower    partition.Key
	Upper    partition.Key
}

// Router is a fake tablet.Router: it resolves each key on its own
// goroutine against a fixed list of tablet range bounds, optionally
// delayed or forced to fail, for exercising the lookup side of the
// session core.
type Router struct {
	mu      sync.Mutex
	bounds  []RangeBound
	delay   time.Duration
	failAll *tablet.LookupError
	calls   int
}

// NewRouter builds a Router covering the given (already sorted, non-
// overlapping) range bounds.
func NewRouter(bounds ...RangeBound) *Router {
	return &Router{bounds: bounds}
}

// SetDelay makes every subsequent lookup sleep for d before resolving,
// simulating network latency.
func (r *Router) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// FailAll makes every subsequent lookup resolve to err instead of a
// tablet, simulating an unreachable master.
func (r *Router) FailAll(err *tablet.LookupError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = err
}

// Calls reports how many lookups have been issued so far.
func (r *Router) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *Router) LocateTablet(ctx context.Context, table *schema.Table, key partition.Key, deadline time.Time) <-chan tablet.Result {
	r.mu.Lock()
	r.calls++
	delay := r.delay
	failAll := r.failAll
	bounds := r.bounds
	r.mu.Unlock()

	ch := make(chan tablet.Result, 1)
	go func() {
		defer close(ch)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				ch <- tablet.Result{Err: ctx.Err()}
				return
			}
		}
		if failAll != nil {
			ch <- tablet.Result{Err: failAll}
			return
		}
		for _, b := range bounds {
			if keyLess(key, b.Lower) {
				continue
			}
			if b.Upper != nil && !keyLess(key, b.Upper) {
				continue
			}
			ch <- tablet.Result{Tablet: &tablet.Located{TabletID: b.TabletID, LeaderReplica: b.TabletID + "-leader"}}
			return
		}
		ch <- tablet.Result{Err: tablet.NewLookupError(tablet.ErrNonCoveredRange, "key %x is outside any tablet's range", []byte(key))}
	}()
	return ch
}

func keyLess(a, b partition.Key) bool {
	if b == nil {
		return false
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Transport is an in-memory fake rpc.Transport: it decodes the batch it
// receives, applies a simple duplicate-key check per tablet, and tracks
// the last propagated timestamp, so the session core's batch-dispatch
// and consistency-propagation logic can be exercised end to end.
type Transport struct {
	mu sync.Mutex

	tabletServerID string
	clock          int64 // monotonically incremented "server timestamp"
	lastPropagated int64

	// seen tracks INSERTed keys per tablet, keyed by their encoded cell
	// bytes, to synthesize AlreadyPresent responses.
	seen map[string]map[string]bool

	defaultTimeout time.Duration

	// failTablets, when non-nil, makes Send return a transport-level
	// error for any request addressed to a listed tablet id.
	failTablets map[string]error

	rejectRowIndex map[string]int // tabletID -> row index to reject with InvalidArgument

	sentBatches int

	// lastRequestPropagatedTS records the PropagatedTimestamp field of the
	// most recently received WriteRequest, so tests can assert on what the
	// session actually sent rather than what the fake computed internally.
	lastRequestPropagatedTS int64
}

// NewTransport builds a Transport with a synthetic server identity.
func NewTransport() *Transport {
	return &Transport{
		tabletServerID: uuid.New().String(),
		seen:           make(map[string]map[string]bool),
		defaultTimeout: 30 * time.Second,
		failTablets:    make(map[string]error),
		rejectRowIndex: make(map[string]int),
	}
}

// FailTablet makes every Send addressed to tabletID fail with err.
func (tr *Transport) FailTablet(tabletID string, err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.failTablets[tabletID] = err
}

// RejectRow makes the batch sent to tabletID report rowIndex as an
// InvalidArgument failure rather than applying it.
func (tr *Transport) RejectRow(tabletID string, rowIndex int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.rejectRowIndex[tabletID] = rowIndex
}

// SentBatches reports how many batches have been sent so far.
func (tr *Transport) SentBatches() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.sentBatches
}

func (tr *Transport) Send(ctx context.Context, req *rpc.WriteRequest) (*rpc.WriteResponse, error) {
	rows, err := rowcodec.Decode(req.Rows, schemaFor(req))
	if err != nil {
		return nil, fmt.Errorf("faketablet: decoding batch: %w", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sentBatches++
	tr.lastRequestPropagatedTS = req.PropagatedTimestamp

	if failErr, ok := tr.failTablets[req.TabletID]; ok {
		return nil, failErr
	}

	tr.clock++
	ts := tr.clock

	if tr.seen[req.TabletID] == nil {
		tr.seen[req.TabletID] = make(map[string]bool)
	}
	bucket := tr.seen[req.TabletID]

	rejectIdx, hasReject := tr.rejectRowIndex[req.TabletID]

	resp := &rpc.WriteResponse{
		WriteTimestamp: ts,
		TabletServerID: tr.tabletServerID,
	}
	for i, row := range rows {
		if hasReject && i == rejectIdx {
			resp.Rows = append(resp.Rows, rpc.RowStatus{RowIndex: i, OK: false, Code: 3, Message: "rejected by test"})
			continue
		}
		key := rowKey(row.Cells)
		if row.Change.IsRowMutation() && row.Change.String() == "INSERT" && bucket[key] {
			resp.Rows = append(resp.Rows, rpc.RowStatus{RowIndex: i, OK: false, Code: 2, Message: "duplicate key"})
			continue
		}
		bucket[key] = true
		resp.Rows = append(resp.Rows, rpc.RowStatus{RowIndex: i, OK: true})
	}
	tr.lastPropagated = ts
	return resp, nil
}

func rowKey(cells [][]byte) string {
	var b []byte
	for _, c := range cells {
		b = append(b, c...)
		b = append(b, 0)
	}
	return string(b)
}

func (tr *Transport) UpdateLastPropagatedTimestamp(ts int64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if ts > tr.lastPropagated {
		tr.lastPropagated = ts
	}
}

// LastPropagatedTimestamp returns the highest timestamp observed so far.
func (tr *Transport) LastPropagatedTimestamp() int64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.lastPropagated
}

// LastRequestPropagatedTimestamp returns the PropagatedTimestamp field
// carried by the most recent WriteRequest this transport has seen, for
// asserting that a session actually forwards it (§4.4, GLOSSARY).
func (tr *Transport) LastRequestPropagatedTimestamp() int64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.lastRequestPropagatedTS
}

func (tr *Transport) DefaultOperationTimeout() time.Duration { return tr.defaultTimeout }

// schemaFor recovers the schema a WriteRequest's rows were encoded
// against. The fake doesn't receive the schema over the wire (a real
// transport would carry the table id and look it up); tests instead
// stash it via WithSchema.
var schemaRegistry sync.Map // tableID -> *schema.Schema

// WithSchema registers sch under tableID so a subsequent Send against
// that table can decode its payload back for inspection.
func WithSchema(tableID string, sch *schema.Schema) { schemaRegistry.Store(tableID, sch) }

func schemaFor(req *rpc.WriteRequest) *schema.Schema {
	v, ok := schemaRegistry.Load(req.TableID)
	if !ok {
		panic(fmt.Sprintf("faketablet: no schema registered for table %q; call WithSchema first", req.TableID))
	}
	return v.(*schema.Schema)
}
