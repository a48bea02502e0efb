package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/gossipctl/internal/model"
	"github.com/danmuck/gossipctl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	testlog.Start(t)

	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.NMin != 2 || len(cfg.Protocols) != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverlaysFileValues(t *testing.T) {
	testlog.Start(t)

	path := writeConfig(t, `
protocols = ["TOK", "ATK"]
n_min = 3
n_max = 5
max_states = 100000
max_duration = "90s"
workers = 4
log_level = "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Protocols) != 2 || cfg.Protocols[0] != "TOK" {
		t.Fatalf("protocols not overlaid: %v", cfg.Protocols)
	}
	if cfg.NMin != 3 || cfg.NMax != 5 || cfg.Workers != 4 {
		t.Fatalf("numbers not overlaid: %+v", cfg)
	}
	d, err := cfg.Duration()
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if d != 90*time.Second {
		t.Fatalf("expected 90s budget, got %v", d)
	}
	// untouched keys keep their defaults
	if cfg.CacheSize == 0 || cfg.LogLevel != "debug" {
		t.Fatalf("defaults lost in overlay: %+v", cfg)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	testlog.Start(t)

	cfg := RunConfig{
		Protocols:   nil,
		NMin:        1,
		NMax:        0,
		MaxStates:   -1,
		Workers:     -2,
		MaxDuration: "bogus",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig in chain, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"protocols", "n_min", "n_max", "max_states", "workers", "max_duration"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("aggregated error missing %q: %v", fragment, msg)
		}
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	testlog.Start(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "n_min = \"three\"")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(writeConfig(t, "n_min = 9\nn_max = 2")); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNMaxBeyondSupportedRejected(t *testing.T) {
	testlog.Start(t)

	cfg := Defaults()
	cfg.NMax = model.MaxAgents + 1
	if err := cfg.Validate(); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
