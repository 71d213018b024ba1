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

// Package session implements the write session core: the double-buffered
// producer/consumer (C5/C6), per-tablet batching (C4), and bounded error
// collection (C7) described in the specification. A Session is not safe
// for concurrent Apply calls (§5 "Not-thread-safe façade"), but its
// internal state is touched concurrently by flush timers and RPC
// completion callbacks, all serialized through a single mutex (the
// "session monitor").
package session

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/partition"
	"github.com/tabletstore/tabletclient/rpc"
	"github.com/tabletstore/tabletclient/status"
	"github.com/tabletstore/tabletclient/tablet"
)

// Session is the public façade (C6): configuration, Apply, Flush,
// Close, error collection, double-buffer admission control, and flush
// scheduling.
type Session struct {
	transport rpc.Transport
	router    tablet.Router
	logger    *log.Logger

	mu  sync.Mutex // the session monitor (§5)
	cfg Config

	bufA, bufB *buffer
	active     *buffer
	inactive   []*buffer // capacity 2
	flushing   []*buffer // buffers currently mid-flush, tracked for throttle notifiers

	syncInFlight int

	lastPropagatedTS int64 // accessed via atomic

	closed bool

	collector *errorCollector
}

// New constructs a Session bound to transport and router, with the
// defaults of §4.6 applied before opts are evaluated.
func New(transport rpc.Transport, router tablet.Router, opts ...Option) *Session {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	bufA, bufB := newBuffer(), newBuffer()
	s := &Session{
		transport: transport,
		router:    router,
		logger:    log.Default(),
		cfg:       cfg,
		bufA:      bufA,
		bufB:      bufB,
		inactive:  []*buffer{bufA, bufB},
		collector: newErrorCollector(cfg.MutationBufferSpace),
	}
	return s
}

// SetLogger overrides the session's logger (default: log.Default()).
func (s *Session) SetLogger(l *log.Logger) { s.logger = l }

// Configure applies opts to the session's configuration. It fails with a
// *status.ProgrammerError if any operations are currently pending,
// matching §4.6's "Configuration setters fail ... if invoked while
// operations are pending."
func (s *Session) Configure(opts ...Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPendingOperationsLocked() {
		return status.NewProgrammerError("cannot reconfigure session while operations are pending")
	}
	for _, o := range opts {
		o(&s.cfg)
	}
	return nil
}

// Config returns a copy of the session's current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Session) hasPendingOperationsLocked() bool {
	if s.active != nil && s.active.len() > 0 {
		return true
	}
	if len(s.flushing) > 0 {
		return true
	}
	if s.syncInFlight > 0 {
		return true
	}
	return false
}

// HasPendingOperations reports whether any operations are buffered,
// flushing, or (for AutoFlushSync) in flight.
func (s *Session) HasPendingOperations() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPendingOperationsLocked()
}

// CountPendingErrors returns the number of row errors currently queued
// in the Error Collector (C7).
func (s *Session) CountPendingErrors() int { return s.collector.count() }

// GetPendingErrors drains the Error Collector, returning its entries and
// whether entries were dropped due to overflow.
func (s *Session) GetPendingErrors() ([]RowErrorEntry, bool) { return s.collector.takeAll() }

func (s *Session) effectiveTimeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	return s.transport.DefaultOperationTimeout()
}

func (s *Session) lookupDeadline() time.Time {
	return time.Now().Add(s.effectiveTimeout())
}

// Apply submits op for dispatch, per the per-mode contract of §4.6.
// The returned *op.Operation is also the completion future: callers
// call Wait on it to block for the server's verdict.
func (s *Session) Apply(ctx context.Context, o *op.Operation) (*op.Operation, error) {
	if o == nil {
		return nil, status.NewProgrammerError("apply: operation is nil")
	}
	if err := o.Freeze(); err != nil {
		return nil, err
	}
	o.IgnoreDuplicateRows = s.Config().IgnoreDuplicateRows
	o.TimeoutMS = int(s.effectiveTimeout() / time.Millisecond)

	switch s.Config().FlushMode {
	case AutoFlushSync:
		return s.applySync(ctx, o)
	case ManualFlush:
		return s.applyManual(ctx, o)
	case AutoFlushBackground:
		return s.applyBackground(ctx, o)
	default:
		return nil, status.NewProgrammerError("apply: unknown flush mode %v", s.cfg.FlushMode)
	}
}

// applySync hands the op directly to the RPC transport with no
// buffering (§4.6 AUTO_FLUSH_SYNC). It dispatches asynchronously so
// that Apply never blocks beyond the session monitor (§5); the caller
// waits on the returned operation.
func (s *Session) applySync(ctx context.Context, o *op.Operation) (*op.Operation, error) {
	s.mu.Lock()
	s.syncInFlight++
	s.mu.Unlock()

	deadline := s.lookupDeadline()
	go func() {
		defer func() {
			s.mu.Lock()
			s.syncInFlight--
			s.mu.Unlock()
		}()
		key, err := partition.Compute(o.Table, o)
		if err != nil {
			o.Fail(status.NewProgrammerError("computing partition key: %v", err))
			return
		}
		located, err := tablet.Lookup(ctx, s.router, o.Table, key, deadline)
		if err != nil {
			o.Complete(s.lookupFailureResponse(err))
			return
		}
		b := newBatch(o.Table, located.TabletID, []*op.Operation{o}, o.IgnoreDuplicateRows)
		b.send(ctx, s.transport, s.cfg.ExternalConsistencyMode, s.loadLastPropagatedTS(), deadline, s.collector, false, s.updateLastPropagatedTS)
	}()
	return o, nil
}

// applyManual buffers op under ManualFlush semantics (§4.6).
func (s *Session) applyManual(ctx context.Context, o *op.Operation) (*op.Operation, error) {
	s.mu.Lock()
	if s.active == nil && s.promoteActiveLocked() == nil {
		notify := anyOf(s.flushing...)
		s.mu.Unlock()
		return nil, status.NewServiceUnavailable(notify, "no mutation buffer available")
	}
	if s.active.len() >= s.cfg.MutationBufferSpace {
		s.mu.Unlock()
		return nil, status.NewIllegalState("buffer too big (limit %d operations)", s.cfg.MutationBufferSpace)
	}

	key, err := partition.Compute(o.Table, o)
	if err != nil {
		s.mu.Unlock()
		return nil, status.NewProgrammerError("computing partition key: %v", err)
	}
	lookup := s.router.LocateTablet(ctx, o.Table, key, s.lookupDeadline())
	s.active.append(&bufferedOp{operation: o, lookup: lookup})
	s.mu.Unlock()
	return o, nil
}

// applyBackground buffers op under AutoFlushBackground semantics,
// implementing the six numbered steps of §4.6 verbatim, including the
// probabilistic early-flush admission of step 3.
func (s *Session) applyBackground(ctx context.Context, o *op.Operation) (*op.Operation, error) {
	s.mu.Lock()

	// Step 1: ensure an active buffer.
	if s.active == nil && s.promoteActiveLocked() == nil {
		notify := anyOf(s.flushing...)
		s.mu.Unlock()
		return nil, status.NewServiceUnavailable(notify, "no mutation buffer available")
	}

	// Step 2: if the active buffer is already full, detach it and try
	// to promote another.
	var toFlush *buffer
	if s.active.len() >= s.cfg.MutationBufferSpace {
		toFlush = s.active
		s.active = nil
		s.flushing = append(s.flushing, toFlush)
		if s.promoteActiveLocked() == nil {
			notify := anyOf(s.flushing...)
			s.mu.Unlock()
			s.startFlush(toFlush)
			return nil, status.NewServiceUnavailable(notify, "no mutation buffer available")
		}
	} else if lw := s.cfg.lowWatermark(); lw < s.cfg.MutationBufferSpace && s.active.len() >= lw && len(s.inactive) == 0 {
		// Step 3: probabilistic early-flush admission. Preserve the
		// exact arithmetic (§9): it shapes the observable throughput.
		span := s.cfg.MutationBufferSpace - lw
		w := s.active.len() + 1 + rand.Intn(span)
		if w > s.cfg.MutationBufferSpace {
			notify := s.active.notify
			s.mu.Unlock()
			return nil, status.NewServiceUnavailable(notify, "mutation buffer throttled (probabilistic admission)")
		}
	}

	// Step 4: append.
	key, err := partition.Compute(o.Table, o)
	if err != nil {
		s.mu.Unlock()
		return nil, status.NewProgrammerError("computing partition key: %v", err)
	}
	lookup := s.router.LocateTablet(ctx, o.Table, key, s.lookupDeadline())
	s.active.append(&bufferedOp{operation: o, lookup: lookup})

	// Step 5 / 6: detach if the append filled the buffer and another is
	// available; otherwise schedule a flush timer for the first op.
	if s.active.len() >= s.cfg.MutationBufferSpace && len(s.inactive) > 0 {
		full := s.active
		s.active = nil
		s.flushing = append(s.flushing, full)
		s.promoteActiveLocked()
		toFlush = full
	} else if s.active.len() == 1 {
		s.scheduleFlushTaskLocked(s.active)
	}

	s.mu.Unlock()
	if toFlush != nil {
		s.logger.Printf("session: buffer full (%d ops), flushing", toFlush.len())
		s.startFlush(toFlush)
	}
	return o, nil
}

// promoteActiveLocked pops a buffer from the inactive queue and installs
// it as active. Must be called with s.mu held. Returns nil if the
// inactive queue is empty.
func (s *Session) promoteActiveLocked() *buffer {
	if len(s.inactive) == 0 {
		return nil
	}
	b := s.inactive[len(s.inactive)-1]
	s.inactive = s.inactive[:len(s.inactive)-1]
	b.state = stateActive
	s.active = b
	return b
}

var taskCounter uint64

// scheduleFlushTaskLocked arms a timer for FlushInterval from now,
// storing its identity on the buffer so a race with a manual flush can
// be detected (§4.6 "Scheduled flush task", §9).
func (s *Session) scheduleFlushTaskLocked(b *buffer) {
	id := taskID(atomic.AddUint64(&taskCounter, 1))
	b.task = id
	b.timer = time.AfterFunc(s.cfg.FlushInterval, func() { s.onFlushTimer(b, id) })
}

// onFlushTimer is the scheduled flush task of §4.6. It only acts if the
// buffer is still active and its stored task identity still matches
// this invocation; otherwise a manual flush has already raced ahead and
// this fires as a no-op (S5).
func (s *Session) onFlushTimer(b *buffer, id taskID) {
	s.mu.Lock()
	if s.active != b || b.task != id {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.flushing = append(s.flushing, b)
	s.promoteActiveLocked()
	s.mu.Unlock()
	s.startFlush(b)
}

// startFlush dispatches buf's generation asynchronously and returns a
// Future that resolves when it completes. buf must already be detached
// from s.active (and, if applicable, already appended to s.flushing).
func (s *Session) startFlush(buf *buffer) *Future {
	if buf == nil || buf.len() == 0 {
		s.mu.Lock()
		if buf != nil {
			buf.notify.fire()
		}
		s.removeFlushingLocked(buf)
		s.pushInactiveLocked(buf)
		s.mu.Unlock()
		return resolved(FlushResult{})
	}
	future := newFuture()
	ignoreDup := s.Config().IgnoreDuplicateRows
	consistency := s.Config().ExternalConsistencyMode
	deadline := time.Now().Add(s.effectiveTimeout())
	collectErrors := s.Config().FlushMode == AutoFlushBackground
	go s.runFlush(buf, ignoreDup, consistency, deadline, collectErrors, future)
	return future
}

// runFlush implements doFlush (§4.6): wait for every pending tablet
// lookup, synthesize row errors for lookups that failed, group the rest
// by tablet into Batches, dispatch them concurrently, then fire the
// buffer's flush-notification, return it to the inactive queue, and
// resolve future with the flattened, submission-ordered response list.
func (s *Session) runFlush(buf *buffer, ignoreDup bool, consistency rpc.ExternalConsistencyMode, deadline time.Time, collectErrors bool, future *Future) {
	ops := buf.ops
	n := len(ops)
	responses := make([]*op.Response, n)

	groupOrder := make([]string, 0, n)
	groups := make(map[string][]int, n)

	for i, bo := range ops {
		res, ok := <-bo.lookup
		switch {
		case !ok:
			bo.lookupErr = tablet.NewLookupError(tablet.ErrUnknown, "lookup channel closed without a result")
		case res.Err != nil:
			bo.lookupErr = res.Err
		default:
			bo.resolved = res.Tablet
		}

		if bo.lookupErr != nil {
			responses[i] = s.lookupFailureResponse(bo.lookupErr)
			if collectErrors {
				s.collector.add(RowErrorEntry{Table: bo.operation.Table.Name, Err: responses[i].RowError})
			}
			bo.operation.Complete(responses[i])
			continue
		}
		tid := bo.resolved.TabletID
		if _, seen := groups[tid]; !seen {
			groupOrder = append(groupOrder, tid)
		}
		groups[tid] = append(groups[tid], i)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	lastTS := s.loadLastPropagatedTS()
	for _, tid := range groupOrder {
		idxs := groups[tid]
		table := ops[idxs[0]].operation.Table
		batchOps := make([]*op.Operation, len(idxs))
		for j, idx := range idxs {
			batchOps[j] = ops[idx].operation
		}
		b := newBatch(table, tid, batchOps, ignoreDup)
		wg.Add(1)
		go func(idxs []int, b *batch) {
			defer wg.Done()
			resp := b.send(context.Background(), s.transport, consistency, lastTS, deadline, s.collector, collectErrors, s.updateLastPropagatedTS)
			mu.Lock()
			for j, idx := range idxs {
				responses[idx] = resp[j]
			}
			mu.Unlock()
		}(idxs, b)
	}
	wg.Wait()

	buf.notify.fire()
	s.mu.Lock()
	s.removeFlushingLocked(buf)
	s.pushInactiveLocked(buf)
	s.mu.Unlock()

	future.resolve(FlushResult{Responses: responses})
}

func (s *Session) removeFlushingLocked(b *buffer) {
	for i, f := range s.flushing {
		if f == b {
			s.flushing = append(s.flushing[:i], s.flushing[i+1:]...)
			return
		}
	}
}

func (s *Session) pushInactiveLocked(b *buffer) {
	if b == nil {
		return
	}
	b.reset()
	s.inactive = append(s.inactive, b)
}

// lookupFailureResponse synthesizes the per-op response described in
// §4.6 "Row-level lookup failure": NotFound for a non-covered range,
// a generic runtime error otherwise (§9 Open Questions — preserved as
// the ambiguous source behavior).
func (s *Session) lookupFailureResponse(err error) *op.Response {
	code := status.CodeRuntimeError
	var lerr *tablet.LookupError
	if errors.As(err, &lerr) && lerr.Kind == tablet.ErrNonCoveredRange {
		code = status.CodeNotFound
	}
	return &op.Response{RowError: &status.RowError{Code: code, Message: err.Error(), RowIndex: -1}}
}

func (s *Session) loadLastPropagatedTS() int64 {
	return atomic.LoadInt64(&s.lastPropagatedTS)
}

// updateLastPropagatedTS advances s.lastPropagatedTS to ts if ts is newer,
// so the next CLIENT_PROPAGATED write carries it forward (§4.4). A CAS
// loop is used rather than a lock since writes from concurrent
// per-tablet batches within the same flush can race here.
func (s *Session) updateLastPropagatedTS(ts int64) {
	for {
		cur := atomic.LoadInt64(&s.lastPropagatedTS)
		if ts <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(&s.lastPropagatedTS, cur, ts) {
			return
		}
	}
}

// Flush detaches the active buffer (if any) and returns a Future that
// resolves once it, and any buffers already flushing, have completed
// (§4.6). It never blocks the caller.
func (s *Session) Flush(ctx context.Context) *Future {
	s.mu.Lock()
	pending := append([]*flushNotification(nil), notifiersOf(s.flushing)...)
	active := s.active
	if active != nil {
		s.active = nil
		s.flushing = append(s.flushing, active)
	}
	s.mu.Unlock()

	activeFuture := s.startFlush(active)
	if len(pending) == 0 {
		return activeFuture
	}
	waitAll := newFuture()
	go func() {
		for _, n := range pending {
			<-n.Done()
		}
		waitAll.resolve(FlushResult{})
	}()
	return joinFutures(waitAll, activeFuture)
}

func notifiersOf(bufs []*buffer) []*flushNotification {
	out := make([]*flushNotification, len(bufs))
	for i, b := range bufs {
		out[i] = b.notify
	}
	return out
}

// Close is idempotent: the first call behaves as Flush; subsequent
// calls return an already-complete Future (§8 "Close() after Close()
// is a no-op").
func (s *Session) Close(ctx context.Context) *Future {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return resolved(FlushResult{})
	}
	s.closed = true
	s.mu.Unlock()
	return s.Flush(ctx)
}
