package fixtures

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

//go:embed testdata/table1.toml
var table1 []byte

// Table maps agent count -> protocol name -> published reachable count.
// The values are external reference data, never baked into test code.
type Table map[int]map[string]int

type fileTable struct {
	Rows []fileRow `toml:"table"`
}

type fileRow struct {
	N      int            `toml:"n"`
	Counts map[string]int `toml:"counts"`
}

// Load reads a reference table from a TOML file.
func Load(path string) (Table, error) {
	var raw fileTable
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("fixtures load %s: %w", path, err)
	}
	return build(raw)
}

// Default returns the reference table shipped with the repository.
func Default() (Table, error) {
	var raw fileTable
	if err := toml.Unmarshal(table1, &raw); err != nil {
		return nil, fmt.Errorf("fixtures embedded table: %w", err)
	}
	return build(raw)
}

func build(raw fileTable) (Table, error) {
	if len(raw.Rows) == 0 {
		return nil, fmt.Errorf("fixtures: no table rows")
	}
	out := make(Table, len(raw.Rows))
	for _, row := range raw.Rows {
		if row.N < 2 {
			return nil, fmt.Errorf("fixtures: row has invalid n=%d", row.N)
		}
		if len(row.Counts) == 0 {
			return nil, fmt.Errorf("fixtures: row n=%d has no counts", row.N)
		}
		if _, dup := out[row.N]; dup {
			return nil, fmt.Errorf("fixtures: duplicate row for n=%d", row.N)
		}
		for proto, count := range row.Counts {
			if count < 1 {
				return nil, fmt.Errorf("fixtures: n=%d protocol %s has count %d", row.N, proto, count)
			}
		}
		out[row.N] = row.Counts
	}
	return out, nil
}

// Ns returns the agent counts present, ascending.
func (t Table) Ns() []int {
	ns := make([]int, 0, len(t))
	for n := range t {
		ns = append(ns, n)
	}
	sort.Ints(ns)
	return ns
}

// Expected returns the published count for (protocol, n).
func (t Table) Expected(protocol string, n int) (int, bool) {
	row, ok := t[n]
	if !ok {
		return 0, false
	}
	count, ok := row[protocol]
	return count, ok
}
