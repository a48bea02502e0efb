package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/danmuck/gossipctl/internal/canonical"
	"github.com/danmuck/gossipctl/internal/config"
	"github.com/danmuck/gossipctl/internal/enumerate"
	"github.com/danmuck/gossipctl/internal/expect"
	"github.com/danmuck/gossipctl/internal/inclusion"
	"github.com/danmuck/gossipctl/internal/observability"
	"github.com/danmuck/gossipctl/internal/protocol"
	"github.com/danmuck/gossipctl/internal/report"
	"github.com/danmuck/gossipctl/internal/results"
)

var version = "0.1.0"

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to a TOML run configuration",
}

var protocolsFlag = &cli.StringSliceFlag{
	Name:  "protocols",
	Usage: "protocol names to enumerate (default from config)",
}

var nMinFlag = &cli.IntFlag{
	Name:  "n-min",
	Usage: "smallest agent count",
}

var nMaxFlag = &cli.IntFlag{
	Name:  "n-max",
	Usage: "largest agent count",
}

var maxStatesFlag = &cli.IntFlag{
	Name:  "max-states",
	Usage: "stop a run after this many canonical states (0 = unlimited)",
}

var maxDurationFlag = &cli.StringFlag{
	Name:  "max-duration",
	Usage: "stop a run after this wall-clock budget, e.g. 90s",
}

var workersFlag = &cli.IntFlag{
	Name:  "workers",
	Usage: "worker goroutines per level (0 = GOMAXPROCS)",
}

var outFlag = &cli.StringFlag{
	Name:  "out",
	Usage: "directory for CSV and JSON artifacts (none written if empty)",
}

var metricsFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Usage: "serve /metrics and /health on this address",
}

var logLevelFlag = &cli.StringFlag{
	Name:  "log-level",
	Usage: "zerolog level: debug, info, warn, error",
}

var protocolFlag = &cli.StringFlag{
	Name:     "protocol",
	Required: true,
	Usage:    "protocol name",
}

var otherFlag = &cli.StringFlag{
	Name:     "other",
	Required: true,
	Usage:    "protocol to compare against",
}

var nFlag = &cli.IntFlag{
	Name:  "n",
	Value: 4,
	Usage: "agent count",
}

var runsFlag = &cli.IntFlag{
	Name:  "runs",
	Value: 1000,
	Usage: "number of random executions to sample",
}

var seedFlag = &cli.Int64Flag{
	Name:  "seed",
	Value: 1,
	Usage: "seed for the sampling RNG",
}

func app() *cli.App {
	a := cli.NewApp()
	a.Name = "gossipctl"
	a.Version = version
	a.Usage = "reachable-state analysis for gossip protocols"
	a.Commands = []*cli.Command{
		{
			Name:  "counts",
			Usage: "Enumerate reachable canonical states for each protocol and agent count.",
			Flags: []cli.Flag{configFlag, protocolsFlag, nMinFlag, nMaxFlag,
				maxStatesFlag, maxDurationFlag, workersFlag, outFlag, metricsFlag, logLevelFlag},
			Action: countsCmd,
		},
		{
			Name:  "compare",
			Usage: "Compare the reachable sets of two protocols at one agent count.",
			Flags: []cli.Flag{configFlag, protocolFlag, otherFlag, nFlag,
				workersFlag, logLevelFlag},
			Action: compareCmd,
		},
		{
			Name:  "expect",
			Usage: "Estimate the expected execution length of a protocol by random sampling.",
			Flags: []cli.Flag{protocolFlag, nFlag, runsFlag, seedFlag, logLevelFlag},
			Action: expectCmd,
		},
		{
			Name:   "protocols",
			Usage:  "List the registered protocol rules.",
			Action: protocolsCmd,
		},
	}
	return a
}

// loadConfig reads the optional --config file and overlays any flags
// the user set explicitly on top of it.
func loadConfig(c *cli.Context) (config.RunConfig, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.RunConfig{}, err
		}
		cfg = loaded
	}
	if c.IsSet("protocols") {
		cfg.Protocols = c.StringSlice("protocols")
	}
	if c.IsSet("n-min") {
		cfg.NMin = c.Int("n-min")
	}
	if c.IsSet("n-max") {
		cfg.NMax = c.Int("n-max")
	}
	if c.IsSet("max-states") {
		cfg.MaxStates = c.Int("max-states")
	}
	if c.IsSet("max-duration") {
		cfg.MaxDuration = c.String("max-duration")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("out") {
		cfg.OutputDir = c.String("out")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return config.RunConfig{}, err
	}
	return cfg, nil
}

func limitsFrom(cfg config.RunConfig) (enumerate.Limits, error) {
	dur, err := cfg.Duration()
	if err != nil {
		return enumerate.Limits{}, err
	}
	return enumerate.Limits{
		MaxStates:   cfg.MaxStates,
		MaxDuration: dur,
		Workers:     cfg.Workers,
	}, nil
}

func countsCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := observability.InitLogger("gossipctl", cfg.LogLevel)
	if cfg.MetricsAddr != "" {
		observability.RegisterMetrics()
		go func() {
			if err := observability.ServeMetrics(cfg.MetricsAddr, logger); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	limits, err := limitsFrom(cfg)
	if err != nil {
		return err
	}
	canon, err := canonical.New(cfg.NMax, cfg.CacheSize)
	if err != nil {
		return err
	}
	reg := protocol.Default()
	store := results.NewStore()

	for n := cfg.NMin; n <= cfg.NMax; n++ {
		for _, name := range cfg.Protocols {
			res, err := enumerate.Run(c.Context, reg, name, n, canon, logger, limits)
			if err != nil {
				return fmt.Errorf("enumerate %s n=%d: %w", name, n, err)
			}
			if err := store.Put(res); err != nil {
				return err
			}
		}
	}

	rows := make([]report.Row, 0, len(store.List()))
	for _, res := range store.List() {
		rows = append(rows, report.FromResult(res))
	}
	fmt.Fprint(c.App.Writer, report.CountsMarkdown(rows))

	if cfg.OutputDir == "" {
		return nil
	}
	return writeArtifacts(cfg, store, rows)
}

func writeArtifacts(cfg config.RunConfig, store *results.Store, rows []report.Row) error {
	if err := report.WriteCountsCSV(filepath.Join(cfg.OutputDir, "counts.csv"), rows); err != nil {
		return err
	}
	for _, res := range store.List() {
		name := fmt.Sprintf("layers_%s_n%d.csv", strings.ToLower(res.Protocol), res.N)
		if err := report.WriteLayerSizesCSV(filepath.Join(cfg.OutputDir, name), res); err != nil {
			return err
		}
	}
	meta := report.NewMeta(report.MetaParams{
		Protocols:   cfg.Protocols,
		NMin:        cfg.NMin,
		NMax:        cfg.NMax,
		MaxStates:   cfg.MaxStates,
		MaxDuration: cfg.MaxDuration,
		Workers:     cfg.Workers,
	}, rows)
	for _, res := range store.List() {
		meta.RecordLayers(res)
	}
	return report.WriteMeta(filepath.Join(cfg.OutputDir, "meta.json"), meta)
}

func compareCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := observability.InitLogger("gossipctl", cfg.LogLevel)
	limits, err := limitsFrom(cfg)
	if err != nil {
		return err
	}
	n := c.Int("n")
	canon, err := canonical.New(n, cfg.CacheSize)
	if err != nil {
		return err
	}
	reg := protocol.Default()

	left, err := enumerate.Run(c.Context, reg, c.String("protocol"), n, canon, logger, limits)
	if err != nil {
		return err
	}
	right, err := enumerate.Run(c.Context, reg, c.String("other"), n, canon, logger, limits)
	if err != nil {
		return err
	}
	rel, err := inclusion.Compare(left, right)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s (%d states) vs %s (%d states) at n=%d: %s\n",
		left.Protocol, left.Count(), right.Protocol, right.Count(), n, rel)
	return nil
}

func expectCmd(c *cli.Context) error {
	rule, err := protocol.Default().Resolve(c.String("protocol"))
	if err != nil {
		return err
	}
	mean, stddev, err := expect.Length(rule, c.Int("n"), c.Int("runs"), c.Int64("seed"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s n=%d runs=%d: mean %.3f calls, stddev %.3f\n",
		rule.Name(), c.Int("n"), c.Int("runs"), mean, stddev)
	return nil
}

func protocolsCmd(c *cli.Context) error {
	for _, name := range protocol.Default().Names() {
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func run(ctx context.Context, args []string) error {
	return app().RunContext(ctx, args)
}
