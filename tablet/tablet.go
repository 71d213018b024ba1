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

// Package tablet models the async tablet-location lookup (C3, §4.3).
// The cache-backed implementation that actually talks to cluster
// metadata lives outside this module (§1 Scope); this package only
// defines the contract the session core depends on.
package tablet

import (
	"context"
	"fmt"
	"time"

	"github.com/tabletstore/tabletclient/partition"
	"github.com/tabletstore/tabletclient/schema"
)

// ErrorKind classifies why a tablet lookup failed.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	// ErrNonCoveredRange indicates the partition key lies outside any
	// tablet's range; surfaced by the session as a row-level NotFound.
	ErrNonCoveredRange
	ErrTimeout
	ErrTransport
	ErrMasterUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNonCoveredRange:
		return "NonCoveredRange"
	case ErrTimeout:
		return "Timeout"
	case ErrTransport:
		return "Transport"
	case ErrMasterUnavailable:
		return "MasterUnavailable"
	default:
		return "Unknown"
	}
}

// LookupError is the error type a Router returns when it cannot resolve
// a partition key to a tablet.
type LookupError struct {
	Kind ErrorKind
	Msg  string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("tablet lookup failed (%s): %s", e.Kind, e.Msg)
}

// NewLookupError builds a *LookupError of the given kind.
func NewLookupError(kind ErrorKind, format string, args ...any) *LookupError {
	return &LookupError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Located is the resolved destination of a write: which tablet owns the
// partition key, and which replica is currently believed to be leader.
type Located struct {
	TabletID      string
	LeaderReplica string
}

// Result is delivered on a lookup's result channel: either a resolved
// Located, or a *LookupError.
type Result struct {
	Tablet *Located
	Err    error
}

// Router asynchronously resolves partition keys to tablets. Callers
// receive a channel rather than blocking, matching the "eventually
// delivered" contract of §4.3; a Router implementation is expected to
// send exactly one Result and then close the channel (or be wrapped so
// that it appears to, via Lookup below).
type Router interface {
	LocateTablet(ctx context.Context, table *schema.Table, key partition.Key, deadline time.Time) <-chan Result
}

// Lookup is a convenience wrapper that blocks until the router either
// produces a result or ctx is done.
func Lookup(ctx context.Context, r Router, table *schema.Table, key partition.Key, deadline time.Time) (*Located, error) {
	ch := r.LocateTablet(ctx, table, key, deadline)
	select {
	case res, ok := <-ch:
		if !ok {
			return nil, NewLookupError(ErrUnknown, "router closed result channel without a result")
		}
		return res.Tablet, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
