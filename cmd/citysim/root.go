package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/talgya/citysim/internal/config"
	"github.com/talgya/citysim/internal/intent"
	"github.com/talgya/citysim/internal/llm"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Verbose    bool
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "citysim",
		Short: "Discrete-time city economy simulation",
		Long: `citysim steps a small city economy forward one month at a time,
clearing labor, goods and financial markets each period and recording
GDP, unemployment, inflation and inequality.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(os.Stderr, opts.Verbose))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging (per-agent skips)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file (defaults when empty)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newResumeCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.ConfigPath == "" {
		return config.Default(), nil
	}
	return config.Load(o.ConfigPath)
}

// defaultDB returns CITYSIM_DB, the database used when --db is not given.
func defaultDB() string {
	return os.Getenv("CITYSIM_DB")
}

// newProvider builds the decision provider for a run. With useLLM and an
// ANTHROPIC_API_KEY the LLM provider plans firms; otherwise the heuristic
// decides for everyone.
func newProvider(cfg config.Config, useLLM bool) (intent.Provider, error) {
	hcfg := intent.DefaultHeuristicConfig()
	hcfg.ConsumptionShare = cfg.Households.ConsumptionShare
	heuristic := intent.NewHeuristic(hcfg, cfg.Simulation.Seed)

	if !useLLM && !cfg.LLM.Enabled {
		return heuristic, nil
	}
	client := newLLMClient(cfg)
	if !client.Enabled() {
		slog.Warn("LLM requested but ANTHROPIC_API_KEY is not set, using heuristic")
		return heuristic, nil
	}
	p, err := llm.NewProvider(client, heuristic, cfg.LLM.CacheSize)
	if err != nil {
		return nil, err
	}
	slog.Info("LLM provider enabled", "model", client.Model())
	return p, nil
}

func newLLMClient(cfg config.Config) *llm.Client {
	return llm.NewClient(os.Getenv("ANTHROPIC_API_KEY"), llm.Options{
		Model:          cfg.LLM.Model,
		CallsPerMinute: cfg.LLM.CallsPerMinute,
		Timeout:        cfg.LLM.Timeout.D(),
	})
}

// parseSeeds parses a comma-separated seed list. Empty means fallback alone.
func parseSeeds(raw string, fallback int64) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return []int64{fallback}, nil
	}
	seen := make(map[int64]bool)
	var seeds []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seed, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", part, err)
		}
		if seen[seed] {
			return nil, fmt.Errorf("duplicate seed %d", seed)
		}
		seen[seed] = true
		seeds = append(seeds, seed)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seeds in %q", raw)
	}
	return seeds, nil
}
