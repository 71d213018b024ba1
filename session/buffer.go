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
	"sync"
	"time"

	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/tablet"
)

// flushNotification is the signal described in §3/§9: it fires exactly
// once per buffer generation, strictly after that generation's flush
// has completed. It satisfies status.Notifier so a *status.ServiceUnavailable
// can carry one directly.
type flushNotification struct {
	once sync.Once
	ch   chan struct{}
}

func newFlushNotification() *flushNotification {
	return &flushNotification{ch: make(chan struct{})}
}

func (f *flushNotification) Done() <-chan struct{} { return f.ch }

// fire closes the channel exactly once; subsequent calls are no-ops, so
// it is safe to call from exactly the one code path that completes a
// buffer's flush.
func (f *flushNotification) fire() { f.once.Do(func() { close(f.ch) }) }

// bufferedOp pairs a frozen operation with its in-flight (or resolved)
// tablet lookup, per §3's BufferedOperation.
type bufferedOp struct {
	operation *op.Operation
	lookup    <-chan tablet.Result

	resolved *tablet.Located
	lookupErr error
}

// bufferState is one of the three states a Buffer cycles through each
// generation (§3).
type bufferState int

const (
	stateInactive bufferState = iota
	stateActive
	stateFlushing
)

// taskID is an opaque handle identifying a scheduled flush task (§4.6,
// §9 "Flush-task identity check"). Each call to scheduleFlushTaskLocked
// allocates a new one; the timer callback compares it against the
// buffer's current task to detect a race with a manual flush.
type taskID uint64

// buffer holds one generation of pending operations and their pending
// tablet lookups (C5, §4.5). All fields are protected by the owning
// Session's monitor; buffer itself holds no lock.
type buffer struct {
	state bufferState
	ops   []*bufferedOp

	notify *flushNotification

	// timer and task identify the scheduled background-flush callback,
	// if any, registered for this buffer's current generation.
	timer *time.Timer
	task  taskID
}

func newBuffer() *buffer {
	return &buffer{state: stateInactive, notify: newFlushNotification()}
}

// reset clears operations, installs a fresh flush-notification, and
// clears the flush task (§4.5).
func (b *buffer) reset() {
	b.ops = nil
	b.notify = newFlushNotification()
	b.stopTimer()
	b.task = 0
	b.state = stateInactive
}

func (b *buffer) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// flushNotificationSignal returns the signal that fires exactly once on
// this generation's flush completion.
func (b *buffer) flushNotificationSignal() *flushNotification { return b.notify }

func (b *buffer) len() int { return len(b.ops) }

func (b *buffer) append(bo *bufferedOp) { b.ops = append(b.ops, bo) }
