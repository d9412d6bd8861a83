package engine

import (
	"log/slog"
	"math"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/entropy"
	"github.com/talgya/citysim/internal/finance"
	"github.com/talgya/citysim/internal/intent"
	"github.com/talgya/citysim/internal/labor"
	"github.com/talgya/citysim/internal/simerr"
)

const stageRevision = intent.StageRevision

// revise runs Revision: plan updates, solvency, labor matching, deposits,
// loans and investment, interest, and finally the policy rate.
func (s *Simulation) revise(p *periodRun, batch *intent.Batch) error {
	s.applyPlans(p, batch)
	s.checkSolvency(p)
	s.matchLabor(p, batch)
	s.processSavings(p, batch)
	s.processInvestment(p, batch)
	s.accrueInterest()
	if err := s.updatePolicyRate(); err != nil {
		if se, ok := err.(*simerr.Error); ok {
			se.Stage = string(stageRevision)
		}
		return err
	}
	return nil
}

// applyPlans applies the revision parts of household and firm decisions.
func (s *Simulation) applyPlans(p *periodRun, batch *intent.Batch) {
	minWage := s.cfg.Labor.MinimumWage

	for _, h := range s.Households {
		d := batch.Household(h.ID)
		if d.Skipped(stageRevision) != nil {
			continue
		}
		if d.DesiredWage > 0 {
			h.DesiredWage = d.DesiredWage
		}
	}

	for _, f := range s.Firms {
		d := batch.Firm(f.ID)
		if d.Skipped(stageRevision) != nil || f.Bankrupt {
			continue
		}
		if d.Vacancies != nil {
			f.Vacancies = *d.Vacancies
		}
		if w := d.OfferedWage; w > 0 {
			if w < minWage {
				p.skipAt(stageRevision, simerr.InvalidIntent(intent.KindFirm, uint64(f.ID),
					"offered wage %.2f raised to minimum wage %.2f", w, minWage))
				w = minWage
			}
			f.OfferedWage = w
		}
		if d.Investment != nil {
			f.PendingInvestment = *d.Investment
		}
		if d.Layoffs > 0 {
			s.layOff(p, f, d.Layoffs)
		}
	}
}

// layOff separates the n most recently hired (highest id) employees.
func (s *Simulation) layOff(p *periodRun, f *agents.Firm, n int) {
	n = min(n, len(f.Employees))
	for range n {
		id := f.Employees[len(f.Employees)-1]
		f.RemoveEmployee(id)
		if h := s.Household(id); h != nil {
			h.Separate()
		}
		p.layoffs++
	}
}

// checkSolvency updates each firm's negative-cash streak. A firm that fails
// lays off its whole staff; it keeps selling inventory but no longer
// produces, hires or borrows.
func (s *Simulation) checkSolvency(p *periodRun) {
	limit := s.cfg.Firms.BankruptcyPeriods
	for _, f := range s.Firms {
		if !f.RecordSolvency(limit) {
			continue
		}
		s.layOff(p, f, len(f.Employees))
		slog.Warn("firm bankrupt",
			"period", p.period,
			"firm", f.ID,
			"name", f.Name,
			"cash", f.Cash,
			"debt", f.Debt,
		)
	}
}

// matchLabor posts open vacancies, collects unemployed seekers and applies
// the labor market's matches.
func (s *Simulation) matchLabor(p *periodRun, batch *intent.Batch) {
	rng := entropy.Stream(s.Seed(), entropy.PurposeLabor, p.period)
	minWage := s.cfg.Labor.MinimumWage

	var postings []labor.JobPosting
	for _, f := range s.Firms {
		if f.Bankrupt || f.Vacancies <= 0 || batch.Firm(f.ID).Skipped(stageRevision) != nil {
			continue
		}
		postings = append(postings, labor.JobPosting{
			ID:             uint64(f.ID),
			Firm:           f.ID,
			Wage:           math.Max(f.OfferedWage, minWage),
			RequiredSkills: f.SkillRequirements,
			VacancyCount:   f.Vacancies,
		})
	}

	var seekers []labor.JobSeeker
	for _, h := range s.Households {
		if h.Employed() {
			continue
		}
		d := batch.Household(h.ID)
		if d.Skipped(stageRevision) != nil {
			continue
		}
		if !entropy.Bernoulli(rng, d.SearchEffort) {
			continue
		}
		seekers = append(seekers, labor.JobSeeker{
			Household:   h.ID,
			Skills:      h.Skills,
			DesiredWage: h.DesiredWage,
		})
	}

	matches, stats := s.Labor.Match(rng, seekers, postings)
	for _, m := range matches {
		h := s.Household(m.Household)
		f := s.Firm(m.Firm)
		if h == nil || f == nil || h.Employed() {
			p.skipAt(stageRevision, simerr.MarketState(intent.KindHousehold, uint64(m.Household),
				"match with firm %d cannot be applied", m.Firm))
			continue
		}
		h.Hire(f.ID, m.Wage)
		f.AddEmployee(h.ID)
		f.Vacancies = max(0, f.Vacancies-1)
	}

	for _, h := range s.Households {
		if !h.Employed() {
			h.MonthsUnemployed++
		}
	}

	p.matches = matches
	p.labor = stats
}

// processSavings moves household cash into or out of deposits. Households
// without an explicit savings decision deposit a share of cash above the
// savings threshold.
func (s *Simulation) processSavings(p *periodRun, batch *intent.Batch) {
	cfg := s.cfg.Households
	var reqs []finance.DepositRequest

	for _, h := range s.Households {
		d := batch.Household(h.ID)
		if d.Skipped(stageRevision) != nil {
			continue
		}
		cash := math.Max(0, h.Cash)

		switch {
		case d.Savings != nil && *d.Savings > 0:
			amount := *d.Savings
			if amount > cash {
				p.skipAt(stageRevision, simerr.InsufficientFunds(intent.KindHousehold, uint64(h.ID),
					"deposit %.2f clamped to cash %.2f", amount, cash))
				amount = cash
			}
			if amount > 0 {
				reqs = append(reqs, finance.DepositRequest{Household: h.ID, Amount: amount})
			}

		case d.Savings != nil && *d.Savings < 0:
			got, err := s.Finance.Withdraw(h.ID, -*d.Savings)
			if err != nil {
				p.skipAt(stageRevision, err)
			}
			h.Cash += got

		case d.Savings == nil && cash > cfg.SavingsThreshold:
			if amount := (cash - cfg.SavingsThreshold) * cfg.SavingsShare; amount > 0 {
				reqs = append(reqs, finance.DepositRequest{Household: h.ID, Amount: amount})
			}
		}
	}

	txs, errs := s.Finance.ProcessDeposits(reqs)
	for _, err := range errs {
		p.skipAt(stageRevision, err)
	}
	for _, tx := range txs {
		if h := s.Household(agents.HouseholdID(tx.AgentID)); h != nil {
			h.Cash -= tx.Amount
			p.deposits += tx.Amount
		}
	}
}

// processInvestment finances each operating firm's pending investment,
// borrowing the shortfall over available cash, then sinks what it can
// afford into capital and repays part of its loan from spare cash.
func (s *Simulation) processInvestment(p *periodRun, batch *intent.Batch) {
	var reqs []finance.LoanRequest
	for _, f := range s.Firms {
		if f.Bankrupt || f.PendingInvestment <= 0 || batch.Firm(f.ID).Skipped(stageRevision) != nil {
			continue
		}
		if shortfall := f.PendingInvestment - math.Max(0, f.Cash); shortfall > 0 {
			reqs = append(reqs, finance.LoanRequest{Firm: f.ID, Amount: shortfall, Purpose: "investment"})
		}
	}

	txs, errs := s.Finance.ProcessLoans(reqs)
	for _, err := range errs {
		p.skipAt(stageRevision, err)
	}
	for _, tx := range txs {
		if f := s.Firm(agents.FirmID(tx.AgentID)); f != nil {
			f.Cash += tx.Amount
			p.loans += tx.Amount
		}
	}

	for _, f := range s.Firms {
		if f.Bankrupt || f.PendingInvestment <= 0 {
			continue
		}
		spend := math.Min(f.PendingInvestment, math.Max(0, f.Cash))
		f.Cash -= spend
		f.Capital += spend
		f.PendingInvestment -= spend
		p.investment += spend
	}

	for _, f := range s.Firms {
		payroll := 0.0
		for _, id := range f.Employees {
			if h := s.Household(id); h != nil {
				payroll += h.Wage
			}
		}
		spare := f.Cash - 2*payroll
		if spare > 0 {
			f.Cash -= s.Finance.Repay(f.ID, spare*0.1)
		}
	}
}

// accrueInterest books one period of interest on both books.
func (s *Simulation) accrueInterest() {
	deposits, _ := s.Finance.Accrue()
	for _, a := range deposits {
		if h := s.Household(agents.HouseholdID(a.Owner)); h != nil {
			h.Period.Interest += a.Interest
		}
	}
	for _, f := range s.Firms {
		f.Debt = s.Finance.LoanBalance(f.ID)
	}
}
