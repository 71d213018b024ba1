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

package config

import (
	"strings"
	"testing"

	"github.com/tabletstore/tabletclient/session"
)

func TestDecode(t *testing.T) {
	doc := `
flushMode: background
externalConsistencyMode: commit_wait
mutationBufferSpace: 250
lowWatermarkPercent: 0.25
flushInterval: 500ms
timeout: 2s
ignoreDuplicateRows: true
`
	opts, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cfg := session.DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.FlushMode != session.AutoFlushBackground {
		t.Errorf("FlushMode = %v, want AutoFlushBackground", cfg.FlushMode)
	}
	if cfg.MutationBufferSpace != 250 {
		t.Errorf("MutationBufferSpace = %d, want 250", cfg.MutationBufferSpace)
	}
	if cfg.FlushInterval.String() != "500ms" {
		t.Errorf("FlushInterval = %v, want 500ms", cfg.FlushInterval)
	}
	if !cfg.IgnoreDuplicateRows {
		t.Errorf("IgnoreDuplicateRows = false, want true")
	}
}

func TestDecodeEmpty(t *testing.T) {
	opts, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(opts) != 0 {
		t.Fatalf("got %d options from an empty document, want 0", len(opts))
	}
}

func TestDecodeBadFlushMode(t *testing.T) {
	_, err := Decode(strings.NewReader("flushMode: bogus\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown flushMode")
	}
}

func TestDecodeJSON(t *testing.T) {
	// YAML is a superset of JSON; config files may use either.
	opts, err := Decode(strings.NewReader(`{"mutationBufferSpace": 42}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cfg := session.DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.MutationBufferSpace != 42 {
		t.Errorf("MutationBufferSpace = %d, want 42", cfg.MutationBufferSpace)
	}
}
