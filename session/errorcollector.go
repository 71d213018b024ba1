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

import "sync"

// RowErrorEntry pairs a row-level error with the name of the table and
// the id of the tablet it came from (TabletID is empty for a failed
// tablet lookup), for inspection via Session.GetPendingErrors.
type RowErrorEntry struct {
	Table   string
	TabletID string
	Err     error
}

// errorCollector is a bounded queue of per-row errors observed during
// background flushes (C7, §4.7). Its own internal lock makes it safe to
// call from the session monitor, a flush goroutine, and the application
// thread without coordination.
type errorCollector struct {
	mu         sync.Mutex
	cap        int
	entries    []RowErrorEntry
	overflowed bool
}

func newErrorCollector(capacity int) *errorCollector {
	if capacity <= 0 {
		capacity = 1
	}
	return &errorCollector{cap: capacity}
}

// add appends e, dropping the oldest entry and marking overflow when the
// queue is already at capacity.
func (c *errorCollector) add(e RowErrorEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.cap {
		c.entries = c.entries[1:]
		c.overflowed = true
	}
	c.entries = append(c.entries, e)
}

// count returns the number of errors currently queued.
func (c *errorCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// takeAll drains the queue and clears the overflow flag.
func (c *errorCollector) takeAll() ([]RowErrorEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.entries
	overflowed := c.overflowed
	c.entries = nil
	c.overflowed = false
	return out, overflowed
}
