package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/citysim/internal/config"
	"github.com/talgya/citysim/internal/engine"
	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/intent"
	"github.com/talgya/citysim/internal/persistence"
)

type runOptions struct {
	*rootOptions
	Periods  int
	Database string
	Seeds    string
	LLM      bool
	Parallel int
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run new simulations",
		Long: `Run one simulation per seed. With --db every period's history record and
a resumable snapshot are stored between periods.

Example:
  citysim run --periods 120 --db ./citysim.db
  citysim run --config city.yaml --seeds 1,2,3,4 --parallel 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulations(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.Periods, "periods", "n", 0, "periods to run (config value when 0)")
	cmd.Flags().StringVar(&opts.Database, "db", defaultDB(), "SQLite database for history and snapshots (env CITYSIM_DB)")
	cmd.Flags().StringVar(&opts.Seeds, "seeds", "", "comma-separated seeds for an ensemble (config seed when empty)")
	cmd.Flags().BoolVar(&opts.LLM, "llm", false, "plan firms with the LLM provider (needs ANTHROPIC_API_KEY)")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "ensemble runs in flight at once")

	return cmd
}

// runResult summarizes one finished or interrupted run.
type runResult struct {
	Seed    int64
	RunID   string
	Periods int
	Last    *indicators.HistoryRecord
}

func runSimulations(ctx context.Context, opts *runOptions, out io.Writer) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	seeds, err := parseSeeds(opts.Seeds, cfg.Simulation.Seed)
	if err != nil {
		return err
	}
	periods := opts.Periods
	if periods <= 0 {
		periods = cfg.Simulation.Periods
	}

	var db *persistence.DB
	if opts.Database != "" {
		db, err = persistence.Open(opts.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database opened", "path", opts.Database)
	}

	results := make([]runResult, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallel > 0 {
		g.SetLimit(opts.Parallel)
	}
	for i, seed := range seeds {
		g.Go(func() error {
			c := cfg
			c.Simulation.Seed = seed
			res, err := startRun(gctx, c, db, periods, opts.LLM)
			results[i] = res
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			return nil
		})
	}
	err = g.Wait()

	printResults(out, results)
	if errors.Is(err, context.Canceled) {
		slog.Warn("run interrupted; stored runs can be continued with citysim resume")
		return nil
	}
	return err
}

func startRun(ctx context.Context, cfg config.Config, db *persistence.DB, periods int, useLLM bool) (runResult, error) {
	sim, err := engine.New(cfg)
	if err != nil {
		return runResult{Seed: cfg.Simulation.Seed}, err
	}
	provider, err := newProvider(cfg, useLLM)
	if err != nil {
		return runResult{Seed: cfg.Simulation.Seed}, err
	}
	runID := ""
	if db != nil {
		if runID, err = db.CreateRun(cfg); err != nil {
			return runResult{Seed: cfg.Simulation.Seed}, err
		}
	}
	return drive(ctx, sim, provider, db, runID, periods, 0, nil)
}

// drive runs periods on sim, storing each period when db is set and calling
// publish after it. interval paces the run for live viewing.
func drive(ctx context.Context, sim *engine.Simulation, provider intent.Provider, db *persistence.DB,
	runID string, periods int, interval time.Duration, publish func(*engine.Simulation)) (runResult, error) {

	r := engine.NewRunner(sim, provider)
	if t := sim.Config().Simulation.ProviderTimeout.D(); t > 0 {
		r.Timeout = t
	}
	r.OnPeriod = func(s *engine.Simulation, rec indicators.HistoryRecord) error {
		if db != nil {
			if err := db.SavePeriod(runID, rec, s.Snapshot()); err != nil {
				return fmt.Errorf("save period: %w", err)
			}
		}
		if publish != nil {
			publish(s)
		}
		if interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		return nil
	}

	err := r.Run(ctx, periods)
	return runResult{
		Seed:    sim.Seed(),
		RunID:   runID,
		Periods: sim.History.Len(),
		Last:    sim.History.Latest(),
	}, err
}

func printResults(out io.Writer, results []runResult) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEED\tRUN\tPERIODS\tGDP\tREAL GDP\tUNEMP\tINFL\tGINI")
	for _, r := range results {
		run := r.RunID
		if run == "" {
			run = "-"
		}
		if r.Last == nil {
			fmt.Fprintf(tw, "%d\t%s\t%d\t-\t-\t-\t-\t-\n", r.Seed, run, r.Periods)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%.1f%%\t%.2f%%\t%.3f\n",
			r.Seed, run, r.Periods,
			money(r.Last.GDP), money(r.Last.RealGDP),
			r.Last.Unemployment*100, r.Last.Inflation*100, r.Last.Gini)
	}
	tw.Flush()
}

// money formats a currency amount with thousands separators.
func money(v float64) string {
	return humanize.CommafWithDigits(v, 0)
}
