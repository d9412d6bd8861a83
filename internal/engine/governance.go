package engine

import (
	"math"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/intent"
	"github.com/talgya/citysim/internal/simerr"
)

const stageTaxation = intent.StageTaxationDividend

// collectTaxes runs Taxation & Dividend. Income tax is debited from each
// household, then UBI and unemployment benefits are credited. A share of the
// collected tax is spent publicly as procurement from operating firms.
func (s *Simulation) collectTaxes(p *periodRun) {
	w := s.cfg.Welfare
	ppy := s.cfg.Finance.PeriodsPerYear

	for _, h := range s.Households {
		tax := s.Tax.PeriodTax(h.Period.WageIncome, ppy)
		if avail := math.Max(0, h.Cash); tax > avail {
			p.skipAt(stageTaxation, simerr.InsufficientFunds(intent.KindHousehold, uint64(h.ID),
				"tax %.2f clamped to cash %.2f", tax, avail))
			tax = avail
		}
		h.Cash -= tax
		h.Period.Tax = tax
		p.tax += tax

		transfer := w.UBI
		if !h.Employed() && h.MonthsUnemployed < w.MaxBenefitPeriods {
			transfer += s.benefit(h)
		}
		h.Cash += transfer
		h.Period.Transfers = transfer
		p.transfers += transfer
	}

	s.Treasury += p.tax - p.transfers
	s.spendPublicly(p, p.tax*w.PublicSpendingShare)

	s.Government.TaxRevenue = p.tax
	s.Government.Transfers = p.transfers
	s.Government.PublicSpending = p.publicSpending
	s.TotalTaxRevenue += p.tax
	s.TotalTransfers += p.transfers
}

// benefit is the benefit rate times the last wage, never less than the rate
// times the minimum wage.
func (s *Simulation) benefit(h *agents.Household) float64 {
	rate := s.cfg.Welfare.BenefitRate
	return rate * math.Max(h.LastWage, s.cfg.Labor.MinimumWage)
}

// spendPublicly splits amount evenly across operating firms as revenue.
func (s *Simulation) spendPublicly(p *periodRun, amount float64) {
	if amount <= 0 {
		return
	}
	var operating []*agents.Firm
	for _, f := range s.Firms {
		if !f.Bankrupt {
			operating = append(operating, f)
		}
	}
	if len(operating) == 0 {
		return
	}
	share := amount / float64(len(operating))
	for _, f := range operating {
		f.Cash += share
		f.Revenue += share
	}
	s.Treasury -= amount
	p.publicSpending = amount
}

// updatePolicyRate pulls the next policy rate from the rate source, using the
// indicators recorded up to the previous period.
func (s *Simulation) updatePolicyRate() error {
	if s.Rates == nil {
		return nil
	}
	inflation := 0.0
	if last := s.History.Latest(); last != nil {
		inflation = last.Inflation
	}
	rate, err := s.Rates.NextRate(s.Finance.PolicyRate, inflation, s.History.Series(indicators.GDP))
	if err != nil {
		return err
	}
	s.Finance.SetPolicyRate(rate)
	return nil
}
