package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/citysim/internal/api"
	"github.com/talgya/citysim/internal/engine"
	"github.com/talgya/citysim/internal/persistence"
)

type serveOptions struct {
	*rootOptions
	Addr     string
	Periods  int
	Database string
	LLM      bool
	Interval time.Duration
	Rate     int
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulation and serve it over HTTP",
		Long: `Run a simulation in the background and serve its state on a read-only
HTTP API. The API keeps serving after the run finishes, until interrupted.

Endpoints:
  GET /api/v1/status
  GET /api/v1/history?limit=N
  GET /api/v1/prices
  GET /api/v1/firms
  GET /api/v1/bulletin

Example:
  citysim serve --addr :8080 --interval 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().IntVarP(&opts.Periods, "periods", "n", 0, "periods to run (config value when 0)")
	cmd.Flags().StringVar(&opts.Database, "db", defaultDB(), "SQLite database for history and snapshots (env CITYSIM_DB)")
	cmd.Flags().BoolVar(&opts.LLM, "llm", false, "plan firms with the LLM provider (needs ANTHROPIC_API_KEY)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "pause between periods")
	cmd.Flags().IntVar(&opts.Rate, "rate", 60, "requests per minute per client (0 disables)")

	return cmd
}

func serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	periods := opts.Periods
	if periods <= 0 {
		periods = cfg.Simulation.Periods
	}

	sim, err := engine.New(cfg)
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg, opts.LLM)
	if err != nil {
		return err
	}

	var db *persistence.DB
	runID := ""
	if opts.Database != "" {
		db, err = persistence.Open(opts.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if runID, err = db.CreateRun(cfg); err != nil {
			return err
		}
	}

	srv := api.NewServer(sim.History, newLLMClient(cfg), opts.Rate)
	srv.Publish(sim, runID, true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, opts.Addr)
	})
	g.Go(func() error {
		publish := func(s *engine.Simulation) { srv.Publish(s, runID, true) }
		res, err := drive(gctx, sim, provider, db, runID, periods, opts.Interval, publish)
		srv.SetRunning(false)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		slog.Info("simulation finished, still serving", "periods", res.Periods)
		return nil
	})
	return g.Wait()
}
