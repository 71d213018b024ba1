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
	"time"

	"github.com/tabletstore/tabletclient/rpc"
)

// FlushMode selects how Apply buffers (or doesn't buffer) operations (§4.6).
type FlushMode int

const (
	AutoFlushSync FlushMode = iota
	AutoFlushBackground
	ManualFlush
)

func (m FlushMode) String() string {
	switch m {
	case AutoFlushSync:
		return "AutoFlushSync"
	case AutoFlushBackground:
		return "AutoFlushBackground"
	case ManualFlush:
		return "ManualFlush"
	default:
		return "Unknown"
	}
}

// Config holds the enumerated session options of §4.6. The zero value
// is not ready to use; call DefaultConfig to get one with the documented
// defaults.
type Config struct {
	FlushMode                         FlushMode
	ExternalConsistencyMode           rpc.ExternalConsistencyMode
	MutationBufferSpace               int
	MutationBufferLowWatermarkPercent float64
	FlushInterval                     time.Duration
	Timeout                           time.Duration
	IgnoreDuplicateRows               bool
}

// DefaultConfig returns a Config with the defaults listed in §4.6.
func DefaultConfig() Config {
	return Config{
		FlushMode:                         AutoFlushSync,
		ExternalConsistencyMode:           rpc.ClientPropagated,
		MutationBufferSpace:               1000,
		MutationBufferLowWatermarkPercent: 0.5,
		FlushInterval:                     time.Second,
		Timeout:                           0, // falls back to Transport.DefaultOperationTimeout
	}
}

// lowWatermark returns the absolute low-watermark count derived from
// MutationBufferLowWatermarkPercent and MutationBufferSpace.
func (c Config) lowWatermark() int {
	w := int(float64(c.MutationBufferSpace) * c.MutationBufferLowWatermarkPercent)
	if w < 0 {
		w = 0
	}
	if w > c.MutationBufferSpace {
		w = c.MutationBufferSpace
	}
	return w
}

// Option configures a Config in place, in the functional-options style.
type Option func(*Config)

func WithFlushMode(m FlushMode) Option { return func(c *Config) { c.FlushMode = m } }

func WithExternalConsistencyMode(m rpc.ExternalConsistencyMode) Option {
	return func(c *Config) { c.ExternalConsistencyMode = m }
}

func WithMutationBufferSpace(n int) Option {
	return func(c *Config) { c.MutationBufferSpace = n }
}

func WithMutationBufferLowWatermarkPercentage(p float64) Option {
	return func(c *Config) { c.MutationBufferLowWatermarkPercent = p }
}

func WithFlushInterval(d time.Duration) Option { return func(c *Config) { c.FlushInterval = d } }

func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

func WithIgnoreDuplicateRows(v bool) Option { return func(c *Config) { c.IgnoreDuplicateRows = v } }
