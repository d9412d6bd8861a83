// Population dynamics: move-in cohorts during the first phase of a run.
package engine

import (
	"log/slog"

	"github.com/talgya/citysim/internal/entropy"
)

// processPopulation runs the Metabolic stage. During move-in it adds up to
// the configured inflow of new households until the cap is reached. It does
// nothing during development.
func (s *Simulation) processPopulation(p *periodRun) {
	if s.Phase != PhaseMoveIn {
		return
	}
	room := s.cfg.Households.Max - len(s.Households)
	n := min(s.cfg.Households.InflowPerPeriod, room)
	if n <= 0 {
		return
	}

	rng := entropy.Stream(s.Seed(), entropy.PurposeSpawn, p.period)
	for _, h := range s.Spawner.Spawn(rng, n, p.period) {
		s.addHousehold(h)
	}
	p.arrivals = n

	slog.Debug("households moved in", "period", p.period, "count", n, "population", len(s.Households))
}
