// Package mapping resolves test identifiers from a report to the tracker's
// own test case numbers.
package mapping

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table maps a test identifier to a tracker test case number.
type Table map[string]int

// Mapper looks up tracker case numbers. It is read-only after construction.
type Mapper struct {
	table Table
}

// New creates a Mapper over a copy of table.
func New(table Table) *Mapper {
	copied := make(Table, len(table))
	for id, no := range table {
		copied[id] = no
	}

	return &Mapper{table: copied}
}

// Lookup returns the case number for identifier. A miss is not an error;
// callers skip identifiers without a mapping.
func (m *Mapper) Lookup(identifier string) (int, bool) {
	no, ok := m.table[identifier]

	return no, ok
}

// Len returns the number of mapped identifiers.
func (m *Mapper) Len() int {
	return len(m.table)
}

// DefaultTable returns the sample table used when no mapping file is configured.
func DefaultTable() Table {
	return Table{
		"test_add_two_numbers": 1,
		"test_add_negative":    2,
	}
}

// mappingFile is the optional wrapped form of a mapping document.
type mappingFile struct {
	Mapping Table `yaml:"mapping"`
}

// LoadFile reads a YAML mapping document. Both a flat
// "identifier: case_no" document and one nested under a "mapping" key
// are accepted.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}

	table, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing mapping file %s: %w", path, err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", path, err)
	}

	return table, nil
}

func parse(data []byte) (Table, error) {
	var wrapped mappingFile
	if err := yaml.Unmarshal(data, &wrapped); err == nil && wrapped.Mapping != nil {
		return wrapped.Mapping, nil
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, err
	}

	if table == nil {
		table = make(Table)
	}

	return table, nil
}

// Validate checks that every entry has an identifier and a positive case number.
func (t Table) Validate() error {
	for id, no := range t {
		if id == "" {
			return fmt.Errorf("empty identifier mapped to case %d", no)
		}

		if no <= 0 {
			return fmt.Errorf("identifier %q: case number must be positive, got %d", id, no)
		}
	}

	return nil
}
