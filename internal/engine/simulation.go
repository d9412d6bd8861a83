// Simulation owns the economy's state and runs it one period at a time.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/config"
	"github.com/talgya/citysim/internal/economy"
	"github.com/talgya/citysim/internal/entropy"
	"github.com/talgya/citysim/internal/finance"
	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/intent"
	"github.com/talgya/citysim/internal/labor"
	"github.com/talgya/citysim/internal/policy"
	"github.com/talgya/citysim/internal/shocks"
	"github.com/talgya/citysim/internal/simerr"
)

// Phase is a lifecycle phase of a run.
type Phase string

const (
	PhaseMoveIn      Phase = "move_in"
	PhaseDevelopment Phase = "development"
)

// RateSource supplies the next policy rate from the current rate, the latest
// inflation and the GDP series so far. *policy.CentralBank implements it.
type RateSource interface {
	NextRate(current, inflation float64, gdp []float64) (float64, error)
}

// Government tracks the public purse.
type Government struct {
	Treasury float64 `json:"treasury"`

	// Last period
	TaxRevenue     float64 `json:"tax_revenue"`
	Transfers      float64 `json:"transfers"`
	PublicSpending float64 `json:"public_spending"`

	// Lifetime totals
	TotalTaxRevenue float64 `json:"total_tax_revenue"`
	TotalTransfers  float64 `json:"total_transfers"`
}

// Simulation holds the complete economy and wires the markets together.
type Simulation struct {
	cfg config.Config

	Households     []*agents.Household
	HouseholdIndex map[agents.HouseholdID]int
	Firms          []*agents.Firm
	FirmIndex      map[agents.FirmID]int

	Period int   // next period to run
	Phase  Phase // phase of the next period
	Government

	Goods      *economy.Market
	Labor      *labor.Market
	Finance    *finance.Market
	Tax        *policy.TaxSchedule
	Rates      RateSource
	Indicators *indicators.Engine
	History    *indicators.History
	Spawner    *agents.Spawner
	Shocks     *shocks.Field

	// Market outcome of the last period, offered to providers.
	LastUnmet  agents.GoodVector
	LastUnsold agents.GoodVector
	LastFill   labor.Stats
}

// New creates a simulation at period 0 with the initial firms and households.
func New(cfg config.Config) (*Simulation, error) {
	s, err := newShell(cfg, indicators.NewHistory())
	if err != nil {
		return nil, err
	}

	templates := agents.DefaultTemplates
	for i := 0; i < cfg.Firms.Count; i++ {
		t := templates[i%len(templates)]
		if round := i / len(templates); round > 0 {
			t.Name = fmt.Sprintf("%s %d", t.Name, round+1)
		}
		s.addFirm(agents.NewFirm(agents.FirmID(i+1), t))
	}

	rng := entropy.Stream(cfg.Simulation.Seed, entropy.PurposeInit, 0)
	for _, h := range s.Spawner.Spawn(rng, cfg.Households.Initial, 0) {
		s.addHousehold(h)
	}

	if cfg.Simulation.MoveInPeriods <= 0 {
		s.Phase = PhaseDevelopment
	}

	slog.Info("simulation created",
		"seed", cfg.Simulation.Seed,
		"households", len(s.Households),
		"firms", len(s.Firms),
		"phase", s.Phase,
	)
	return s, nil
}

// newShell builds the markets and rules without any agents.
func newShell(cfg config.Config, hist *indicators.History) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lm, err := labor.NewMarket(cfg.Labor.MatchProbability, cfg.Labor.ScoreThreshold)
	if err != nil {
		return nil, simerr.Configuration("%v", err)
	}
	fm, err := finance.NewMarket(
		cfg.Finance.InitialPolicyRate,
		cfg.Finance.DepositSpread,
		cfg.Finance.LoanSpread,
		cfg.Finance.PeriodsPerYear,
		cfg.Finance.ApprovalPolicy(),
	)
	if err != nil {
		return nil, err
	}
	tax, err := policy.NewTaxSchedule(cfg.Tax.Brackets)
	if err != nil {
		return nil, err
	}
	cb, err := policy.NewCentralBank(cfg.Policy.Taylor, cfg.Policy.PotentialWindow)
	if err != nil {
		return nil, err
	}

	return &Simulation{
		cfg:            cfg,
		HouseholdIndex: make(map[agents.HouseholdID]int),
		FirmIndex:      make(map[agents.FirmID]int),
		Phase:          PhaseMoveIn,
		Goods:          economy.NewMarket(cfg.Goods.Window),
		Labor:          lm,
		Finance:        fm,
		Tax:            tax,
		Rates:          cb,
		Indicators:     indicators.NewEngine(cfg.Simulation.Depreciation),
		History:        hist,
		Spawner:        agents.NewSpawner(agents.DefaultSpawnConfig()),
		Shocks:         shocks.NewField(cfg.Simulation.Seed, cfg.Simulation.ShockAmplitude),
	}, nil
}

// Config returns the run configuration.
func (s *Simulation) Config() config.Config { return s.cfg }

// Seed returns the run seed.
func (s *Simulation) Seed() int64 { return s.cfg.Simulation.Seed }

// HasHousehold implements intent.Directory.
func (s *Simulation) HasHousehold(id agents.HouseholdID) bool {
	_, ok := s.HouseholdIndex[id]
	return ok
}

// HasFirm implements intent.Directory.
func (s *Simulation) HasFirm(id agents.FirmID) bool {
	_, ok := s.FirmIndex[id]
	return ok
}

// Household returns the household with id, or nil.
func (s *Simulation) Household(id agents.HouseholdID) *agents.Household {
	if i, ok := s.HouseholdIndex[id]; ok {
		return s.Households[i]
	}
	return nil
}

// Firm returns the firm with id, or nil.
func (s *Simulation) Firm(id agents.FirmID) *agents.Firm {
	if i, ok := s.FirmIndex[id]; ok {
		return s.Firms[i]
	}
	return nil
}

// addHousehold registers a new household in the arena and index.
func (s *Simulation) addHousehold(h *agents.Household) {
	s.HouseholdIndex[h.ID] = len(s.Households)
	s.Households = append(s.Households, h)
}

// addFirm registers a new firm in the arena and index.
func (s *Simulation) addFirm(f *agents.Firm) {
	s.FirmIndex[f.ID] = len(s.Firms)
	s.Firms = append(s.Firms, f)
}

// Employed counts households with an employer.
func (s *Simulation) Employed() int {
	n := 0
	for _, h := range s.Households {
		if h.Employed() {
			n++
		}
	}
	return n
}

// Bankrupt counts bankrupt firms.
func (s *Simulation) Bankrupt() int {
	n := 0
	for _, f := range s.Firms {
		if f.Bankrupt {
			n++
		}
	}
	return n
}

// Step runs one period: Production & Trading, Taxation & Dividend,
// Metabolic and Revision, strictly in that order, then computes and records
// the period's indicators.
//
// Recoverable per-agent errors skip the agent for the affected stage and
// are listed on the returned record. A fatal error leaves the simulation as
// it was before the step and returns a *simerr.Error whose Diagnostic holds
// the state at the point of failure.
func (s *Simulation) Step(raws []intent.Raw) (indicators.HistoryRecord, error) {
	before := s.Snapshot()

	rec, err := s.step(raws)
	if err != nil {
		diag := s.Snapshot()
		if rerr := s.load(before); rerr != nil {
			return rec, errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
		var se *simerr.Error
		if !errors.As(err, &se) {
			se = simerr.New(simerr.KindInvariantViolation, "period %d", before.Period)
			se.Err = err
		}
		se.Diagnostic = &diag
		slog.Error("period aborted", "period", before.Period, "error", se)
		return rec, se
	}
	return rec, nil
}

func (s *Simulation) step(raws []intent.Raw) (indicators.HistoryRecord, error) {
	p := newPeriodRun(s.Period)

	batch, errs := intent.Parse(raws, s)
	for _, err := range errs {
		p.skip(err)
	}

	for _, h := range s.Households {
		h.Period = agents.PeriodFlows{}
	}
	for _, f := range s.Firms {
		f.Output, f.Sales, f.Revenue = 0, 0, 0
	}

	s.produceAndTrade(p, batch)
	s.collectTaxes(p)
	s.processPopulation(p)
	if err := s.revise(p, batch); err != nil {
		return indicators.HistoryRecord{}, err
	}
	if err := s.checkBalances(); err != nil {
		return indicators.HistoryRecord{}, err
	}

	rec, err := s.Indicators.Compute(s.aggregates(p), s.History)
	if err != nil {
		if se, ok := err.(*simerr.Error); ok {
			se.Stage = "indicators"
		}
		return rec, err
	}
	if err := s.History.Append(rec); err != nil {
		return rec, simerr.InvariantViolation("append history: %v", err)
	}

	s.LastUnmet = p.unmet
	s.LastUnsold = p.unsold
	s.LastFill = p.labor
	s.Period++
	if s.Phase == PhaseMoveIn && s.Period >= s.cfg.Simulation.MoveInPeriods {
		s.Phase = PhaseDevelopment
		slog.Info("phase transition", "period", s.Period, "phase", s.Phase)
	}

	s.report(p, &rec)
	return rec, nil
}

// checkBalances guards against non-finite money leaking into indicators.
func (s *Simulation) checkBalances() error {
	for _, h := range s.Households {
		if math.IsNaN(h.Cash) || math.IsInf(h.Cash, 0) {
			return simerr.InvariantViolation("household %d cash %v", h.ID, h.Cash)
		}
	}
	for _, f := range s.Firms {
		if math.IsNaN(f.Cash) || math.IsInf(f.Cash, 0) || math.IsNaN(f.Capital) || f.Capital < 0 {
			return simerr.InvariantViolation("firm %d cash %v capital %v", f.ID, f.Cash, f.Capital)
		}
	}
	return nil
}

// aggregates gathers the measured period state for the indicator engine.
func (s *Simulation) aggregates(p *periodRun) indicators.Aggregates {
	agg := indicators.Aggregates{
		Period:         p.period,
		Phase:          string(s.Phase),
		Consumption:    p.consumption,
		FirmCapital:    make([]float64, 0, len(s.Firms)),
		PublicSpending: p.publicSpending,
		TaxRevenue:     p.tax,
		Transfers:      p.transfers,
		Households:     len(s.Households),
		Employed:       s.Employed(),
		Firms:          len(s.Firms),
		BankruptFirms:  s.Bankrupt(),
		FillRate:       p.labor.FillRate,
		Incomes:        make([]float64, 0, len(s.Households)),
		Prices:         s.Goods.Prices(),
		Demands:        s.Goods.Demands(),
		UnmetDemand:    p.unmet,
		UnsoldSupply:   p.unsold,
		PolicyRate:     s.Finance.PolicyRate,
		DepositRate:    s.Finance.DepositRate(),
		LoanRate:       s.Finance.LoanRate(),
		LoanToDeposit:  s.Finance.LoanToDeposit(),
		Skipped:        p.skipped,
	}
	for _, f := range s.Firms {
		agg.FirmCapital = append(agg.FirmCapital, f.Capital)
	}
	for _, h := range s.Households {
		agg.Incomes = append(agg.Incomes, h.Period.DisposableIncome())
		agg.FoodSpending += h.Period.FoodSpending
		agg.TotalSpending += h.Period.TotalSpending
	}
	return agg
}

// report logs the period summary.
func (s *Simulation) report(p *periodRun, rec *indicators.HistoryRecord) {
	slog.Info("period report",
		"period", rec.Period,
		"phase", rec.Phase,
		"households", rec.Households,
		"employed", rec.Employed,
		"gdp", fmt.Sprintf("%.2f", rec.GDP),
		"real_gdp", fmt.Sprintf("%.2f", rec.RealGDP),
		"unemployment", fmt.Sprintf("%.3f", rec.Unemployment),
		"inflation", fmt.Sprintf("%.4f", rec.Inflation),
		"gini", fmt.Sprintf("%.3f", rec.Gini),
		"policy_rate", fmt.Sprintf("%.4f", rec.PolicyRate),
		"transactions", p.transactions,
		"hires", len(p.matches),
		"skipped", len(p.skipped),
		"treasury", fmt.Sprintf("%.2f", s.Treasury),
	)
}
