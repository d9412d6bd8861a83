package engine

import (
	"github.com/talgya/citysim/internal/intent"
)

// Observe builds the end-of-previous-period view offered to decision
// providers. All agents see the same snapshot.
func (s *Simulation) Observe() *intent.Observation {
	obs := &intent.Observation{
		Period:       s.Period,
		Phase:        string(s.Phase),
		Prices:       s.Goods.Prices(),
		Demands:      s.Goods.Demands(),
		UnmetDemand:  s.LastUnmet,
		UnsoldSupply: s.LastUnsold,
		PolicyRate:   s.Finance.PolicyRate,
		DepositRate:  s.Finance.DepositRate(),
		LoanRate:     s.Finance.LoanRate(),
		MinimumWage:  s.cfg.Labor.MinimumWage,
		Households:   make([]intent.HouseholdView, 0, len(s.Households)),
		Firms:        make([]intent.FirmView, 0, len(s.Firms)),
	}
	if last := s.History.Latest(); last != nil {
		obs.Unemployment = last.Unemployment
		obs.Inflation = last.Inflation
	}

	for _, h := range s.Households {
		obs.Households = append(obs.Households, intent.HouseholdView{
			ID:               h.ID,
			Cash:             h.Cash,
			Deposits:         s.Finance.DepositBalance(h.ID),
			Employed:         h.Employed(),
			Wage:             h.Wage,
			DesiredWage:      h.DesiredWage,
			MonthsUnemployed: h.MonthsUnemployed,
			Skills:           h.Skills,
			LastIncome:       h.Period.WageIncome,
		})
	}
	for _, f := range s.Firms {
		obs.Firms = append(obs.Firms, intent.FirmView{
			ID:          f.ID,
			Good:        f.Good,
			Cash:        f.Cash,
			Capital:     f.Capital,
			Debt:        f.Debt,
			Inventory:   f.Inventory[f.Good],
			Price:       f.Prices[f.Good],
			Employees:   len(f.Employees),
			Vacancies:   f.Vacancies,
			OfferedWage: f.OfferedWage,
			Output:      f.Output,
			Sales:       f.Sales,
			Revenue:     f.Revenue,
			Bankrupt:    f.Bankrupt,
		})
	}
	return obs
}
