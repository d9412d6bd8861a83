package intent

import (
	"context"
	"math"
	"math/rand"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/entropy"
)

// HeuristicConfig tunes the rule-based provider.
type HeuristicConfig struct {
	ConsumptionShare float64 // share of cash spent per period
	SavingsShare     float64 // share of last income deposited
	PriceStep        float64 // relative price adjustment per period
	WageStep         float64 // relative wage adjustment per period
	WageDecay        float64 // desired wage decay per unemployed period
	InvestmentShare  float64 // capital growth target when flush
}

// DefaultHeuristicConfig returns the standard rules.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		ConsumptionShare: 0.10,
		SavingsShare:     0.15,
		PriceStep:        0.03,
		WageStep:         0.02,
		WageDecay:        0.05,
		InvestmentShare:  0.02,
	}
}

// Heuristic is a rule-based provider. Households spread a share of cash
// across the basket and save part of their income. Firms move prices
// toward clearing their own market, hire when demand goes unmet, and invest
// when cash is ample. Small per-agent jitter comes from the run seed.
type Heuristic struct {
	cfg  HeuristicConfig
	seed int64
}

// NewHeuristic creates a heuristic provider.
func NewHeuristic(cfg HeuristicConfig, seed int64) *Heuristic {
	return &Heuristic{cfg: cfg, seed: seed}
}

// Decide implements Provider.
func (h *Heuristic) Decide(_ context.Context, obs *Observation) ([]Raw, error) {
	rng := entropy.Stream(h.seed, entropy.PurposeHeuristic, obs.Period)
	out := make([]Raw, 0, len(obs.Households)+len(obs.Firms))
	for i := range obs.Households {
		hv := &obs.Households[i]
		out = append(out, Raw{Kind: KindHousehold, ID: uint64(hv.ID), Household: h.Household(rng, obs, hv)})
	}
	for i := range obs.Firms {
		fv := &obs.Firms[i]
		if fv.Bankrupt {
			continue
		}
		out = append(out, Raw{Kind: KindFirm, ID: uint64(fv.ID), Firm: h.Firm(obs, fv)})
	}
	return out, nil
}

// Household returns the rule-based intent for one household.
func (h *Heuristic) Household(rng *rand.Rand, obs *Observation, hv *HouseholdView) *HouseholdIntent {
	share := h.cfg.ConsumptionShare * (0.8 + 0.4*rng.Float64())
	budget := math.Max(0, hv.Cash) * share

	consumption := make(map[string]float64, agents.NumGoods)
	for _, g := range agents.Catalog {
		if b := budget * g.BasketWeight; b > 0 {
			consumption[g.Key] = round2(b)
		}
	}

	in := &HouseholdIntent{Consumption: consumption}

	if hv.Employed {
		s := round2(hv.LastIncome * h.cfg.SavingsShare)
		if s > 0 {
			in.Savings = &s
		}
	} else {
		w := math.Max(obs.MinimumWage, hv.DesiredWage*(1-h.cfg.WageDecay))
		w = round2(w)
		in.DesiredWage = &w
		effort := 1.0
		in.SearchEffort = &effort
		// Draw down savings when cash runs short of a month's basket.
		if hv.Deposits > 0 && hv.Cash < budget*10 {
			s := -round2(math.Min(hv.Deposits, budget*5))
			if s < 0 {
				in.Savings = &s
			}
		}
	}
	return in
}

// Firm returns the rule-based intent for one firm.
func (h *Heuristic) Firm(obs *Observation, fv *FirmView) *FirmIntent {
	unmet := obs.UnmetDemand[fv.Good]
	unsold := obs.UnsoldSupply[fv.Good]

	price := fv.Price
	switch {
	case unmet > 0 && fv.Inventory <= fv.Output*0.5:
		price *= 1 + h.cfg.PriceStep
	case unsold > 0 && fv.Inventory > fv.Output:
		price *= 1 - h.cfg.PriceStep
	}
	floor := agents.Catalog[fv.Good].BasePrice * 0.1
	price = round2(math.Max(price, floor))

	in := &FirmIntent{Prices: map[string]float64{fv.Good.Key(): price}}

	payroll := float64(fv.Employees) * fv.OfferedWage
	vacancies := 0
	layoffs := 0
	switch {
	case unmet > 0 && fv.Cash > payroll*2:
		vacancies = 1 + int(math.Min(4, unmet/math.Max(1, fv.Output/math.Max(1, float64(fv.Employees)))))
	case fv.Employees == 0:
		vacancies = 1
	case fv.Cash < payroll && unsold > fv.Output*0.5:
		layoffs = 1
	}
	in.Vacancies = &vacancies
	if layoffs > 0 {
		in.Layoffs = &layoffs
	}

	wage := fv.OfferedWage
	if fv.Vacancies > 0 && obs.Unemployment < 0.05 {
		wage *= 1 + h.cfg.WageStep
	}
	wage = round2(math.Max(wage, obs.MinimumWage))
	in.OfferedWage = &wage

	if fv.Output > 0 {
		target := round2(math.Max(fv.Sales*1.2, fv.Output*0.5))
		if target > 0 {
			in.TargetOutput = &target
		}
	}

	if fv.Cash > payroll*6 && unmet > 0 {
		inv := round2(fv.Capital * h.cfg.InvestmentShare)
		in.Investment = &inv
	}
	return in
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
