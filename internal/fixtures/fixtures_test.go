package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/gossipctl/internal/testutil/testlog"
)

func TestDefaultTable(t *testing.T) {
	testlog.Start(t)

	table, err := Default()
	if err != nil {
		t.Fatalf("default table: %v", err)
	}

	ns := table.Ns()
	if len(ns) < 3 || ns[0] != 2 {
		t.Fatalf("expected rows from n=2 upward, got %v", ns)
	}
	for _, n := range ns {
		for _, proto := range []string{"ANY", "CO", "LNS", "SPI", "TOK"} {
			count, ok := table.Expected(proto, n)
			if !ok {
				t.Fatalf("missing %s at n=%d", proto, n)
			}
			if count < 1 {
				t.Fatalf("%s at n=%d has nonsense count %d", proto, n, count)
			}
		}
	}

	if _, ok := table.Expected("ANY", 99); ok {
		t.Fatalf("unknown n should report absence")
	}
}

func TestLoadFromFileMatchesEmbedded(t *testing.T) {
	testlog.Start(t)

	loaded, err := Load(filepath.Join("testdata", "table1.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	embedded, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if len(loaded) != len(embedded) {
		t.Fatalf("file and embedded tables diverge: %d vs %d rows", len(loaded), len(embedded))
	}
	for n, row := range embedded {
		for proto, want := range row {
			got, ok := loaded.Expected(proto, n)
			if !ok || got != want {
				t.Fatalf("n=%d %s: file %d ok=%v, embedded %d", n, proto, got, ok, want)
			}
		}
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "bad n", body: "[[table]]\nn = 1\n[table.counts]\nANY = 2\n"},
		{name: "no counts", body: "[[table]]\nn = 3\n"},
		{name: "zero count", body: "[[table]]\nn = 3\n[table.counts]\nANY = 0\n"},
		{name: "duplicate n", body: "[[table]]\nn = 3\n[table.counts]\nANY = 4\n[[table]]\nn = 3\n[table.counts]\nANY = 4\n"},
		{name: "not toml", body: "{\"n\": 3}"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "table.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected load failure for %s", tc.name)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
