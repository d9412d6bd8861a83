// Production: wages and Cobb-Douglas output for the Production & Trading stage.
package engine

import (
	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/intent"
)

// payWages moves each employee's wage from employer to household. Employers
// may go into negative cash, which counts toward bankruptcy.
func (s *Simulation) payWages(p *periodRun) {
	for _, f := range s.Firms {
		for _, id := range f.Employees {
			h := s.Household(id)
			if h == nil {
				continue
			}
			f.Cash -= h.Wage
			h.Cash += h.Wage
			h.Period.WageIncome += h.Wage
			p.wages += h.Wage
		}
	}
}

// produce applies firm plans and adds Cobb-Douglas output to inventory.
func (s *Simulation) produce(p *periodRun, batch *intent.Batch) {
	for _, f := range s.Firms {
		d := batch.Firm(f.ID)
		if d.Skipped(stageTrading) != nil || f.Bankrupt {
			continue
		}
		if d.TargetOutput != nil {
			f.TargetOutput = *d.TargetOutput
		}
		if d.Prices != nil {
			for g, price := range d.Prices {
				if price > 0 {
					f.Prices[g] = price
				}
			}
		}

		workers := make([]agents.SkillSet, 0, len(f.Employees))
		for _, id := range f.Employees {
			if h := s.Household(id); h != nil {
				workers = append(workers, h.Skills)
			}
		}
		eff := agents.EffectiveLabor(f.SkillRequirements, workers)
		out := f.Produce(s.Shocks.Multiplier(uint64(f.ID), p.period), eff)

		f.Inventory[f.Good] += out
		f.Output = out
		p.output += out
	}
}
