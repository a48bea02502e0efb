package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/gossipctl/internal/enumerate"
)

// Row is one rendered line of a counts table.
type Row struct {
	Protocol      string
	N             int
	States        int
	Transitions   int
	Complete      bool
	AllRunsGossip bool
}

// FromResult flattens a run into a table row.
func FromResult(res *enumerate.Result) Row {
	return Row{
		Protocol:      res.Protocol,
		N:             res.N,
		States:        res.Count(),
		Transitions:   res.Transitions,
		Complete:      res.Complete,
		AllRunsGossip: res.AllRunsGossip,
	}
}

// CountsMarkdown renders rows as a markdown table.
func CountsMarkdown(rows []Row) string {
	var b strings.Builder
	b.WriteString("| protocol | n | states | transitions | complete | all runs gossip |\n")
	b.WriteString("|----------|---|--------|-------------|----------|-----------------|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %t | %t |\n",
			r.Protocol, r.N, r.States, r.Transitions, r.Complete, r.AllRunsGossip)
	}
	return b.String()
}

// WriteCountsCSV persists rows to path, creating parent directories.
func WriteCountsCSV(path string, rows []Row) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"protocol", "n", "states", "transitions", "complete", "all_runs_gossip"}); err != nil {
		return fmt.Errorf("report counts header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Protocol,
			strconv.Itoa(r.N),
			strconv.Itoa(r.States),
			strconv.Itoa(r.Transitions),
			strconv.FormatBool(r.Complete),
			strconv.FormatBool(r.AllRunsGossip),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("report counts row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteLayerSizesCSV persists one run's per-depth discovery counts.
func WriteLayerSizesCSV(path string, res *enumerate.Result) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"depth", "count"}); err != nil {
		return fmt.Errorf("report layers header: %w", err)
	}
	for depth, count := range res.LayerSizes {
		if err := w.Write([]string{strconv.Itoa(depth), strconv.Itoa(count)}); err != nil {
			return fmt.Errorf("report layers row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// Meta is the JSON run summary written next to the CSV artifacts.
type Meta struct {
	Timestamp  string           `json:"timestamp"`
	Params     MetaParams       `json:"params"`
	Summary    []Row            `json:"summary"`
	LayerSizes map[string][]int `json:"layer_sizes,omitempty"`
}

// MetaParams echoes the run parameters into the summary file.
type MetaParams struct {
	Protocols   []string `json:"protocols"`
	NMin        int      `json:"n_min"`
	NMax        int      `json:"n_max"`
	MaxStates   int      `json:"max_states,omitempty"`
	MaxDuration string   `json:"max_duration,omitempty"`
	Workers     int      `json:"workers,omitempty"`
}

// NewMeta stamps a summary with the current UTC time.
func NewMeta(params MetaParams, rows []Row) Meta {
	return Meta{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Params:    params,
		Summary:   rows,
	}
}

// RecordLayers attaches one run's per-depth discovery counts, keyed
// "<protocol>/<n>".
func (m *Meta) RecordLayers(res *enumerate.Result) {
	if m.LayerSizes == nil {
		m.LayerSizes = make(map[string][]int)
	}
	m.LayerSizes[fmt.Sprintf("%s/%d", res.Protocol, res.N)] = res.LayerSizes
}

// WriteMeta persists the summary as indented JSON.
func WriteMeta(path string, meta Meta) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("report meta: %w", err)
	}
	return nil
}

func create(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("report mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("report create %s: %w", path, err)
	}
	return f, nil
}
