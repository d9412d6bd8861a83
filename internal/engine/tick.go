// Package engine provides the period stepper and the loop that drives it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/intent"
)

// DefaultProviderTimeout bounds how long a provider may take per period.
const DefaultProviderTimeout = 30 * time.Second

// Runner drives a Simulation forward, collecting intents from a provider
// between periods.
type Runner struct {
	Sim      *Simulation
	Provider intent.Provider // nil means every agent uses defaults
	Fallback intent.Provider // used when Provider fails; nil means defaults
	Timeout  time.Duration   // per-period provider budget

	// OnPeriod is called after every completed period, outside the stepper.
	// Returning an error stops the run.
	OnPeriod func(sim *Simulation, rec indicators.HistoryRecord) error
}

// NewRunner creates a runner with the default provider timeout.
func NewRunner(sim *Simulation, provider intent.Provider) *Runner {
	return &Runner{
		Sim:      sim,
		Provider: provider,
		Timeout:  DefaultProviderTimeout,
	}
}

// Run advances the simulation by periods. It stops early when ctx is done,
// a period fails fatally, or OnPeriod returns an error.
func (r *Runner) Run(ctx context.Context, periods int) error {
	decider := &intent.Fallback{
		Primary:   r.Provider,
		Secondary: r.Fallback,
		Timeout:   r.Timeout,
	}
	slog.Info("simulation run started", "period", r.Sim.Period, "periods", periods)
	start := time.Now()

	for i := 0; i < periods; i++ {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation run interrupted", "period", r.Sim.Period)
			return err
		}

		obs := r.Sim.Observe()
		raws, err := decider.Decide(ctx, obs)
		if err != nil {
			// Fallback only fails when no provider can answer at all.
			slog.Warn("no intents this period", "period", obs.Period, "error", err)
			raws = nil
		}

		rec, err := r.Sim.Step(raws)
		if err != nil {
			return fmt.Errorf("period %d: %w", obs.Period, err)
		}
		if r.OnPeriod != nil {
			if err := r.OnPeriod(r.Sim, rec); err != nil {
				return fmt.Errorf("period %d callback: %w", rec.Period, err)
			}
		}
	}

	slog.Info("simulation run finished",
		"period", r.Sim.Period,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
