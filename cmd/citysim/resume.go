package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/talgya/citysim/internal/persistence"
)

type resumeOptions struct {
	*rootOptions
	Database string
	RunID    string
	Periods  int
	LLM      bool
}

func newResumeCommand(root *rootOptions) *cobra.Command {
	opts := &resumeOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue a stored run from its latest snapshot",
		Long: `Continue a stored run. The configuration stored with the run is used;
--config is ignored. Periods after the latest snapshot are recomputed, and
produce the same records the original run would have.

Example:
  citysim resume --db ./citysim.db --run 6f1c... --periods 60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resumeRun(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", defaultDB(), "SQLite database (env CITYSIM_DB)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (required)")
	cmd.Flags().IntVarP(&opts.Periods, "periods", "n", 0, "further periods to run (remaining configured periods when 0)")
	cmd.Flags().BoolVar(&opts.LLM, "llm", false, "plan firms with the LLM provider (needs ANTHROPIC_API_KEY)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func resumeRun(ctx context.Context, opts *resumeOptions, out io.Writer) error {
	if opts.Database == "" {
		return fmt.Errorf("--db or CITYSIM_DB is required")
	}
	db, err := persistence.Open(opts.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	sim, err := db.Resume(opts.RunID)
	if err != nil {
		return err
	}
	cfg := sim.Config()

	periods := opts.Periods
	if periods <= 0 {
		periods = cfg.Simulation.Periods - sim.Period
	}
	if periods <= 0 {
		slog.Info("run already complete", "run", opts.RunID, "period", sim.Period)
		return nil
	}

	provider, err := newProvider(cfg, opts.LLM)
	if err != nil {
		return err
	}
	res, err := drive(ctx, sim, provider, db, opts.RunID, periods, 0, nil)
	printResults(out, []runResult{res})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
