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

// tabletcli is a small demo/smoke-test binary: it drives a Session
// against the in-process fake tablet server (internal/faketablet) and
// prints the outcome of a batch of inserts read from a newline-delimited
// "key=value" file. It exists to exercise the session core end to end
// without a real cluster, not as a production client.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tabletstore/tabletclient/config"
	"github.com/tabletstore/tabletclient/internal/faketablet"
	"github.com/tabletstore/tabletclient/op"
	"github.com/tabletstore/tabletclient/schema"
	"github.com/tabletstore/tabletclient/session"
)

var (
	dashv        bool
	dashh        bool
	configPath   string
	tablePath    string
	numBuckets   int
	inputPath    string
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.BoolVar(&dashh, "h", false, "show usage help")
	flag.StringVar(&configPath, "c", "", "session config file (YAML or JSON)")
	flag.StringVar(&tablePath, "t", "", "table definition file (YAML or JSON); defaults to a hardcoded demo table")
	flag.IntVar(&numBuckets, "buckets", 4, "number of fake tablets (hash buckets) to route across")
	flag.StringVar(&inputPath, "f", "-", "input file of key=value lines (or - for stdin)")
}

func exitf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func logf(f string, args ...any) {
	if !dashv {
		return
	}
	if f[len(f)-1] != '\n' {
		f += "\n"
	}
	fmt.Fprintf(os.Stderr, f, args...)
}

func demoTable(numBuckets int) *schema.Table {
	sch := schema.Schema{
		Columns: []schema.Column{
			{Name: "key", Type: schema.STRING, IsKey: true},
			{Name: "value", Type: schema.STRING, IsNullable: true},
		},
		NumKeyColumns: 1,
	}
	t := &schema.Table{
		ID:   "demo",
		Name: "demo",
		Schema: sch,
		Partition: schema.PartitionSchema{
			Hash: []schema.HashPartitionSchema{
				{ColumnIndexes: []int{0}, NumBuckets: uint32(numBuckets), Seed: 1},
			},
		},
	}
	faketablet.WithSchema(t.ID, &t.Schema)
	return t
}

// resolveTable returns the table to drive the demo against: one loaded
// from tablePath via schema.LoadTable if set, mirroring db.Sync's
// definition.json/definition.yaml handling, or the hardcoded demoTable
// otherwise. It also returns the hash-bucket count to build the fake
// router around, taken from the table's own partitioning when present.
func resolveTable() (*schema.Table, int, error) {
	if tablePath == "" {
		t := demoTable(numBuckets)
		return t, numBuckets, nil
	}
	t, err := schema.LoadTable(tablePath)
	if err != nil {
		return nil, 0, fmt.Errorf("loading table definition: %w", err)
	}
	faketablet.WithSchema(t.ID, &t.Schema)
	buckets := numBuckets
	if len(t.Partition.Hash) > 0 {
		buckets = int(t.Partition.Hash[0].NumBuckets)
	}
	return t, buckets, nil
}

func bucketRouter(numBuckets int) *faketablet.Router {
	bounds := make([]faketablet.RangeBound, numBuckets)
	for i := 0; i < numBuckets; i++ {
		lower := make([]byte, 4)
		putUint32(lower, uint32(i))
		bounds[i] = faketablet.RangeBound{TabletID: fmt.Sprintf("bucket-%d", i), Lower: lower}
		if i+1 < numBuckets {
			upper := make([]byte, 4)
			putUint32(upper, uint32(i+1))
			bounds[i].Upper = upper
		}
	}
	return faketablet.NewRouter(bounds...)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func run(opts []session.Option) error {
	table, buckets, err := resolveTable()
	if err != nil {
		return err
	}
	transport := faketablet.NewTransport()
	router := bucketRouter(buckets)
	s := session.New(transport, router, opts...)
	defer s.Close(context.Background())

	var in *os.File
	if inputPath == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var handles []*op.Operation
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			logf("skipping malformed line %q\n", line)
			continue
		}
		row := schema.NewPartialRow(&table.Schema)
		if err := row.SetString(0, key); err != nil {
			return err
		}
		if value != "" {
			if err := row.SetString(1, value); err != nil {
				return err
			}
		}
		o := op.NewOperation(table, row, op.INSERT)
		handle, err := s.Apply(context.Background(), o)
		if err != nil {
			logf("apply %q: %v\n", key, err)
			continue
		}
		handles = append(handles, handle)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if _, err := s.Close(context.Background()).Wait(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	ok, failed := 0, 0
	for _, h := range handles {
		resp, err := h.Wait()
		switch {
		case err != nil:
			failed++
			fmt.Printf("ERROR: %v\n", err)
		case resp.HasRowError():
			failed++
			fmt.Printf("ROW ERROR: %v\n", resp.RowError)
		default:
			ok++
		}
	}
	fmt.Printf("%d ok, %d failed, pending errors: %d\n", ok, failed, s.CountPendingErrors())
	return nil
}

func main() {
	flag.Parse()
	if dashh {
		fmt.Fprintf(os.Stderr, "usage: %s [-v] [-c config.yaml] [-t definition.yaml] [-buckets N] [-f input]\n", os.Args[0])
		flag.Usage()
		os.Exit(1)
	}

	var opts []session.Option
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			exitf("loading config: %s\n", err)
		}
		opts = loaded
	}

	start := time.Now()
	if err := run(opts); err != nil {
		exitf("%s\n", err)
	}
	logf("done in %s\n", time.Since(start))
}
