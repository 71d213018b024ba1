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

// Package config decodes the on-disk form of a session's tuning knobs: a
// YAML (or JSON, since JSON is valid YAML) document naming the same
// options exposed as session.Option values. It exists so an operator can
// hand a file to a binary rather than recompiling flags (cmd/tabletcli
// uses it this way).
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/tabletstore/tabletclient/rpc"
	"github.com/tabletstore/tabletclient/session"
)

// File is the decoded shape of a session config file. Field names match
// the session.Config knobs; durations are spelled the way time.ParseDuration
// accepts them ("500ms", "2s") rather than as bare nanosecond counts.
type File struct {
	FlushMode               string  `json:"flushMode,omitempty"`
	ExternalConsistencyMode string  `json:"externalConsistencyMode,omitempty"`
	MutationBufferSpace     int     `json:"mutationBufferSpace,omitempty"`
	LowWatermarkPercent     float64 `json:"lowWatermarkPercent,omitempty"`
	FlushInterval           string  `json:"flushInterval,omitempty"`
	Timeout                 string  `json:"timeout,omitempty"`
	IgnoreDuplicateRows     bool    `json:"ignoreDuplicateRows,omitempty"`
}

// Decode parses a config document from src and translates it into
// session.Option values, in the order the fields above are declared, so
// that callers can append their own overriding options afterward.
func Decode(src io.Reader) ([]session.Option, error) {
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("config: reading document: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("config: decoding document: %w", err)
	}
	return f.options()
}

// Load opens path and decodes it with Decode.
func Load(path string) ([]session.Option, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func (f *File) options() ([]session.Option, error) {
	var opts []session.Option

	if f.FlushMode != "" {
		mode, err := parseFlushMode(f.FlushMode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithFlushMode(mode))
	}
	if f.ExternalConsistencyMode != "" {
		mode, err := parseConsistencyMode(f.ExternalConsistencyMode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithExternalConsistencyMode(mode))
	}
	if f.MutationBufferSpace != 0 {
		opts = append(opts, session.WithMutationBufferSpace(f.MutationBufferSpace))
	}
	if f.LowWatermarkPercent != 0 {
		opts = append(opts, session.WithMutationBufferLowWatermarkPercentage(f.LowWatermarkPercent))
	}
	if f.FlushInterval != "" {
		d, err := time.ParseDuration(f.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("config: flushInterval: %w", err)
		}
		opts = append(opts, session.WithFlushInterval(d))
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("config: timeout: %w", err)
		}
		opts = append(opts, session.WithTimeout(d))
	}
	if f.IgnoreDuplicateRows {
		opts = append(opts, session.WithIgnoreDuplicateRows(true))
	}
	return opts, nil
}

func parseFlushMode(s string) (session.FlushMode, error) {
	switch s {
	case "AUTO_FLUSH_SYNC", "sync":
		return session.AutoFlushSync, nil
	case "AUTO_FLUSH_BACKGROUND", "background":
		return session.AutoFlushBackground, nil
	case "MANUAL_FLUSH", "manual":
		return session.ManualFlush, nil
	default:
		return 0, fmt.Errorf("config: unknown flushMode %q", s)
	}
}

func parseConsistencyMode(s string) (rpc.ExternalConsistencyMode, error) {
	switch s {
	case "CLIENT_PROPAGATED", "client_propagated":
		return rpc.ClientPropagated, nil
	case "COMMIT_WAIT", "commit_wait":
		return rpc.CommitWait, nil
	default:
		return 0, fmt.Errorf("config: unknown externalConsistencyMode %q", s)
	}
}
