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

	"github.com/tabletstore/tabletclient/op"
)

// FlushResult is what a Future resolves to: the flattened, submission-
// ordered responses for every operation covered by the flush, per
// scenario S6 ("the composite flush future's response list preserves
// the original apply order").
type FlushResult struct {
	Responses []*op.Response
	Err       error
}

// Future is the one-shot completion slot returned by Flush and Close
// (§9 "Completion futures"). It is always resolved exactly once.
type Future struct {
	done chan struct{}
	res  FlushResult
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolved returns a Future that is already complete, used by
// Flush()/Close() when there is nothing to wait on (§8 "Close() after
// Close() is a no-op that returns an already-complete future").
func resolved(res FlushResult) *Future {
	f := &Future{done: make(chan struct{})}
	f.res = res
	close(f.done)
	return f
}

func (f *Future) resolve(res FlushResult) {
	f.res = res
	close(f.done)
}

// Wait blocks until f resolves and returns its result.
func (f *Future) Wait() ([]*op.Response, error) {
	<-f.done
	return f.res.Responses, f.res.Err
}

// WaitContext blocks until f resolves or ctx is done, whichever first.
func (f *Future) WaitContext(ctx context.Context) ([]*op.Response, error) {
	select {
	case <-f.done:
		return f.res.Responses, f.res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// joinFutures waits for n futures and merges their results in order, for
// Flush()'s "both the non-active notifications and the active flush
// complete" composite (§4.6).
func joinFutures(futures ...*Future) *Future {
	out := newFuture()
	go func() {
		var all []*op.Response
		for _, f := range futures {
			resp, err := f.Wait()
			if err != nil {
				out.resolve(FlushResult{Err: err})
				return
			}
			all = append(all, resp...)
		}
		out.resolve(FlushResult{Responses: all})
	}()
	return out
}
