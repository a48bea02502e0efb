package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/gossipctl/internal/canonical"
	"github.com/danmuck/gossipctl/internal/model"
)

// RunConfig drives an analysis run: which protocols, which agent
// counts, and how hard the enumerator may work.
type RunConfig struct {
	Protocols   []string `toml:"protocols"`
	NMin        int      `toml:"n_min"`
	NMax        int      `toml:"n_max"`
	MaxStates   int      `toml:"max_states"`
	MaxDuration string   `toml:"max_duration"`
	Workers     int      `toml:"workers"`
	CacheSize   int      `toml:"cache_size"`
	OutputDir   string   `toml:"output_dir"`
	MetricsAddr string   `toml:"metrics_addr"`
	LogLevel    string   `toml:"log_level"`
}

// Defaults returns the configuration used when no file is supplied.
func Defaults() RunConfig {
	return RunConfig{
		Protocols: []string{"ANY", "CO", "LNS", "TOK", "SPI"},
		NMin:      2,
		NMax:      4,
		CacheSize: canonical.DefaultCacheSize,
		LogLevel:  "info",
	}
}

// Load reads a TOML run config, overlaying file values on Defaults.
func Load(path string) (RunConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Duration parses the configured time budget; empty means unbounded.
func (c RunConfig) Duration() (time.Duration, error) {
	raw := strings.TrimSpace(c.MaxDuration)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: max_duration %q: %v", model.ErrConfig, raw, err)
	}
	return d, nil
}

// Validate collects every problem with the configuration rather than
// stopping at the first.
func (c RunConfig) Validate() error {
	var errs *multierror.Error

	if len(c.Protocols) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: protocols list is empty", model.ErrConfig))
	}
	for i, name := range c.Protocols {
		if strings.TrimSpace(name) == "" {
			errs = multierror.Append(errs, fmt.Errorf("%w: protocols[%d] is blank", model.ErrConfig, i))
		}
	}
	if c.NMin < 2 {
		errs = multierror.Append(errs, fmt.Errorf("%w: n_min=%d must be at least 2", model.ErrConfig, c.NMin))
	}
	if c.NMax < c.NMin {
		errs = multierror.Append(errs, fmt.Errorf("%w: n_max=%d below n_min=%d", model.ErrConfig, c.NMax, c.NMin))
	}
	if c.NMax > model.MaxAgents {
		errs = multierror.Append(errs, fmt.Errorf("%w: n_max=%d beyond supported %d", model.ErrConfig, c.NMax, model.MaxAgents))
	}
	if c.MaxStates < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: max_states=%d is negative", model.ErrConfig, c.MaxStates))
	}
	if c.Workers < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: workers=%d is negative", model.ErrConfig, c.Workers))
	}
	if c.CacheSize < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: cache_size=%d is negative", model.ErrConfig, c.CacheSize))
	}
	if _, err := c.Duration(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
