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

// anyOf returns a status.Notifier that fires as soon as any one of the
// given buffers' flush-notifications fires — used when every buffer is
// currently flushing and Apply must throttle until the first one frees
// up capacity (§4.6, §7 "Throttle").
func anyOf(bufs ...*buffer) *flushNotification {
	out := newFlushNotification()
	if len(bufs) == 0 {
		out.fire()
		return out
	}
	var once sync.Once
	for _, b := range bufs {
		b := b
		go func() {
			<-b.notify.Done()
			once.Do(out.fire)
		}()
	}
	return out
}
