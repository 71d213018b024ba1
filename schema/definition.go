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

package schema

import (
	"fmt"
	"io"
	"os"

	"sigs.k8s.io/yaml"
)

// columnDef is the on-disk shape of one Column.
type columnDef struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	IsNullable bool   `json:"nullable,omitempty"`
}

// hashPartitionDef is the on-disk shape of one HashPartitionSchema.
type hashPartitionDef struct {
	Columns    []string `json:"columns"`
	NumBuckets uint32   `json:"buckets"`
	Seed       uint32   `json:"seed,omitempty"`
}

// partitionDef is the on-disk shape of a PartitionSchema: zero or more
// hash components followed by an optional ordered range component.
type partitionDef struct {
	Hash         []hashPartitionDef `json:"hash,omitempty"`
	RangeColumns []string           `json:"rangeColumns,omitempty"`
}

// TableDefinition is the on-disk shape of a table descriptor: the
// column list (in order, primary-key columns first), the partitioning
// scheme referencing those columns by name, and table identity.
type TableDefinition struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Columns   []columnDef  `json:"columns"`
	NumKeys   int          `json:"numKeyColumns"`
	Partition partitionDef `json:"partition,omitempty"`
}

// DecodeTable decodes a single table definition from src and resolves it
// into a *Table, validating it with Schema.Validate before returning.
func DecodeTable(src io.Reader) (*Table, error) {
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("schema: reading table definition: %w", err)
	}
	var def TableDefinition
	if err := yaml.Unmarshal(buf, &def); err != nil {
		return nil, fmt.Errorf("schema: decoding table definition: %w", err)
	}
	return def.resolve()
}

// LoadTable opens path (a definition.yaml or definition.json file) and
// decodes it with DecodeTable.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	defer f.Close()
	return DecodeTable(f)
}

func parseType(s string) (Type, error) {
	switch s {
	case "BOOL", "bool":
		return BOOL, nil
	case "INT8", "int8":
		return INT8, nil
	case "INT16", "int16":
		return INT16, nil
	case "INT32", "int32":
		return INT32, nil
	case "INT64", "int64":
		return INT64, nil
	case "FLOAT", "float", "float32":
		return FLOAT, nil
	case "DOUBLE", "double", "float64":
		return DOUBLE, nil
	case "UNIXTIME_MICROS", "unixtime_micros", "timestamp":
		return UNIXTIME_MICROS, nil
	case "STRING", "string":
		return STRING, nil
	case "BINARY", "binary", "bytes":
		return BINARY, nil
	default:
		return 0, fmt.Errorf("schema: unknown column type %q", s)
	}
}

func (d *TableDefinition) resolve() (*Table, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("schema: table definition is missing an id")
	}
	if len(d.Columns) == 0 {
		return nil, fmt.Errorf("schema: table %q has no columns", d.ID)
	}

	cols := make([]Column, len(d.Columns))
	byName := make(map[string]int, len(d.Columns))
	for i, cd := range d.Columns {
		t, err := parseType(cd.Type)
		if err != nil {
			return nil, fmt.Errorf("schema: table %q column %q: %w", d.ID, cd.Name, err)
		}
		cols[i] = Column{Name: cd.Name, Type: t, IsKey: i < d.NumKeys, IsNullable: cd.IsNullable}
		byName[cd.Name] = i
	}

	resolveIndexes := func(names []string) ([]int, error) {
		idxs := make([]int, len(names))
		for i, name := range names {
			idx, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("schema: table %q references unknown column %q", d.ID, name)
			}
			idxs[i] = idx
		}
		return idxs, nil
	}

	part := PartitionSchema{}
	for _, h := range d.Partition.Hash {
		idxs, err := resolveIndexes(h.Columns)
		if err != nil {
			return nil, err
		}
		part.Hash = append(part.Hash, HashPartitionSchema{ColumnIndexes: idxs, NumBuckets: h.NumBuckets, Seed: h.Seed})
	}
	if len(d.Partition.RangeColumns) > 0 {
		idxs, err := resolveIndexes(d.Partition.RangeColumns)
		if err != nil {
			return nil, err
		}
		part.Range = RangePartitionSchema{ColumnIndexes: idxs}
	}

	sch := Schema{Columns: cols, NumKeyColumns: d.NumKeys}
	if err := sch.Validate(); err != nil {
		return nil, fmt.Errorf("schema: table %q: %w", d.ID, err)
	}

	name := d.Name
	if name == "" {
		name = d.ID
	}
	return &Table{ID: d.ID, Name: name, Schema: sch, Partition: part}, nil
}
