package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/config"
	"github.com/talgya/citysim/internal/economy"
	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/intent"
	"github.com/talgya/citysim/internal/simerr"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Simulation.ShockAmplitude = 0
	return cfg
}

func newSim(t *testing.T, cfg config.Config) *Simulation {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestNew_InitialState(t *testing.T) {
	s := newSim(t, testConfig())

	assert.Len(t, s.Firms, 12)
	assert.Len(t, s.Households, 10)
	assert.Equal(t, 0, s.Period)
	assert.Equal(t, PhaseMoveIn, s.Phase)
	for i, f := range s.Firms {
		assert.Equal(t, agents.FirmID(i+1), f.ID)
		assert.True(t, s.HasFirm(f.ID))
	}
	assert.False(t, s.HasHousehold(999))
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Labor.MatchProbability = 2
	_, err := New(cfg)
	assert.True(t, simerr.Is(err, simerr.KindConfiguration))
}

func TestStep_PeriodZero(t *testing.T) {
	s := newSim(t, testConfig())

	rec, err := s.Step(nil)
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Period)
	assert.Equal(t, 100.0, rec.PriceIndex)
	assert.Zero(t, rec.Inflation)
	assert.Equal(t, 15, rec.Households, "move-in adds the inflow")
	assert.Equal(t, 1, s.Period)
	assert.Equal(t, 1, s.History.Len())
	assert.Positive(t, rec.Investment)
}

func TestStep_PhaseTransitionStopsGrowth(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.MoveInPeriods = 2
	s := newSim(t, cfg)

	for range 2 {
		_, err := s.Step(nil)
		require.NoError(t, err)
	}
	assert.Equal(t, PhaseDevelopment, s.Phase)
	assert.Len(t, s.Households, 20)

	rec, err := s.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, string(PhaseDevelopment), rec.Phase)
	assert.Len(t, s.Households, 20)
}

func TestStep_PopulationCap(t *testing.T) {
	cfg := testConfig()
	cfg.Households.Max = 12
	s := newSim(t, cfg)

	_, err := s.Step(nil)
	require.NoError(t, err)
	_, err = s.Step(nil)
	require.NoError(t, err)
	assert.Len(t, s.Households, 12)
}

func TestStep_TaxIsDebited(t *testing.T) {
	cfg := testConfig()
	cfg.Households.ConsumptionShare = 0
	cfg.Households.SavingsThreshold = 1e12
	cfg.Welfare.UBI = 0
	cfg.Welfare.BenefitRate = 0
	s := newSim(t, cfg)

	h := s.Households[0]
	f := s.Firms[0]
	h.Hire(f.ID, 10000)
	f.AddEmployee(h.ID)
	cash := h.Cash

	rec, err := s.Step(nil)
	require.NoError(t, err)

	// 120000 a year owes 3000 + 10000 + 6000 across the brackets.
	want := 19000.0 / 12
	assert.InDelta(t, want, h.Period.Tax, 1e-9)
	assert.InDelta(t, cash+10000-want, h.Cash, 1e-6)
	assert.InDelta(t, want, rec.TaxRevenue, 1e-9)
	assert.InDelta(t, want*cfg.Welfare.PublicSpendingShare, rec.GovernmentSpending, 1e-9)
}

func TestStep_SpendingComesFromTransactions(t *testing.T) {
	s := newSim(t, testConfig())
	bakery := s.Firms[0]
	require.Equal(t, agents.GoodBread, bakery.Good)
	bakery.Inventory[agents.GoodBread] = 10000

	rec, err := s.Step(nil)
	require.NoError(t, err)

	spent := 0.0
	for _, h := range s.Households {
		spent += h.Period.TotalSpending
		assert.Equal(t, h.Period.TotalSpending, h.Period.FoodSpending, "default rule buys only bread")
	}
	assert.Positive(t, spent)
	assert.InDelta(t, spent, rec.Consumption, 1e-6)
	assert.InDelta(t, 1.0, rec.FoodShare, 1e-12)
	assert.InDelta(t, 10000-spent/20, bakery.Inventory[agents.GoodBread], 1e-6)
	assert.Zero(t, rec.UnmetDemand["bread"])
}

func TestStep_BadIntentsSkipOnlyTheirAgents(t *testing.T) {
	s := newSim(t, testConfig())
	s.Firms[0].Inventory[agents.GoodBread] = 10000

	raws := []intent.Raw{
		{Kind: intent.KindHousehold, ID: 1, Household: &intent.HouseholdIntent{
			Consumption: map[string]float64{"bread": -5},
		}},
		{Kind: intent.KindHousehold, ID: 2, Household: &intent.HouseholdIntent{
			Consumption: map[string]float64{"bread": 50},
		}},
		{Kind: intent.KindHousehold, ID: 999, Household: &intent.HouseholdIntent{}},
		{Kind: intent.KindFirm, ID: 2, Firm: &intent.FirmIntent{
			Prices: map[string]float64{"produce": -1},
		}},
	}

	rec, err := s.Step(raws)
	require.NoError(t, err)

	kinds := map[uint64]string{}
	for _, sk := range rec.Skipped {
		if sk.AgentKind == intent.KindHousehold {
			kinds[sk.AgentID] = sk.Kind
		}
	}
	assert.Equal(t, string(simerr.KindInvalidIntent), kinds[1])
	assert.Equal(t, string(simerr.KindMarketState), kinds[999])

	assert.Zero(t, s.Household(1).Period.TotalSpending)
	assert.InDelta(t, 50.0, s.Household(2).Period.TotalSpending, 1e-9)
	assert.Positive(t, s.Household(3).Period.TotalSpending, "other agents still trade")
	assert.Equal(t, 30.0, s.Firm(2).Prices[agents.GoodProduce], "rejected price list is not applied")
}

func TestStep_ConsumptionClampedToCash(t *testing.T) {
	s := newSim(t, testConfig())
	s.Firms[0].Inventory[agents.GoodBread] = 1e9
	h := s.Household(1)
	h.Cash = 100

	rec, err := s.Step([]intent.Raw{{Kind: intent.KindHousehold, ID: 1, Household: &intent.HouseholdIntent{
		Consumption: map[string]float64{"bread": 5000},
	}}})
	require.NoError(t, err)

	assert.InDelta(t, 100.0, h.Period.TotalSpending, 1e-9)
	found := false
	for _, sk := range rec.Skipped {
		if sk.AgentID == 1 && sk.Kind == string(simerr.KindInsufficientFunds) {
			found = true
		}
	}
	assert.True(t, found)
}

type failingRates struct{}

func (failingRates) NextRate(float64, float64, []float64) (float64, error) {
	return 0, simerr.InvariantViolation("rate source broke")
}

func TestStep_FatalErrorRollsBack(t *testing.T) {
	s := newSim(t, testConfig())
	s.Firms[0].Inventory[agents.GoodBread] = 10000
	s.Rates = failingRates{}
	before := s.Snapshot()

	_, err := s.Step(nil)
	require.Error(t, err)
	assert.True(t, simerr.IsFatal(err))

	var se *simerr.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, string(intent.StageRevision), se.Stage)
	diag, ok := se.Diagnostic.(*State)
	require.True(t, ok)
	assert.Len(t, diag.Households, 15, "diagnostic shows the failed period's state")

	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, 0, s.History.Len())
	assert.Len(t, s.Households, 10)
}

func TestStep_BankruptcyAfterConsecutiveLosses(t *testing.T) {
	cfg := testConfig()
	cfg.Welfare.PublicSpendingShare = 0
	s := newSim(t, cfg)

	f := s.Firms[3]
	h := s.Households[0]
	h.Hire(f.ID, 2000)
	f.AddEmployee(h.ID)
	f.Cash = -1e9
	f.Vacancies = 0

	for i := range 3 {
		rec, err := s.Step(nil)
		require.NoError(t, err)
		if i < 2 {
			assert.False(t, f.Bankrupt)
		} else {
			assert.Equal(t, 1, rec.BankruptFirms)
		}
	}
	assert.True(t, f.Bankrupt)
	assert.Empty(t, f.Employees)
	// Labor matching runs after the solvency check, so another firm may
	// already have hired the laid-off worker.
	if h.Employed() {
		assert.NotEqual(t, f.ID, *h.Employer)
		assert.True(t, s.Firm(*h.Employer).HasEmployee(h.ID))
	}

	_, err := s.Step(nil)
	require.NoError(t, err)
	assert.Zero(t, f.Output)
	assert.Empty(t, f.Employees, "bankrupt firms do not hire")
	assert.Zero(t, s.Finance.LoanBalance(f.ID))
}

func TestStep_BenefitStopsAfterMaxPeriods(t *testing.T) {
	cfg := testConfig()
	cfg.Welfare.UBI = 0
	s := newSim(t, cfg)

	h := s.Households[0]
	require.False(t, h.Employed())
	h.LastWage = 0
	noSearch := 0.0
	raws := []intent.Raw{{Kind: intent.KindHousehold, ID: uint64(h.ID), Household: &intent.HouseholdIntent{
		SearchEffort: &noSearch,
	}}}

	want := cfg.Welfare.BenefitRate * cfg.Labor.MinimumWage
	for period := range cfg.Welfare.MaxBenefitPeriods {
		_, err := s.Step(raws)
		require.NoError(t, err)
		require.False(t, h.Employed())
		assert.InDelta(t, want, h.Period.Transfers, 1e-9, "period %d", period)
	}

	_, err := s.Step(raws)
	require.NoError(t, err)
	assert.Zero(t, h.Period.Transfers)
	assert.Equal(t, cfg.Welfare.MaxBenefitPeriods+1, h.MonthsUnemployed)
}

func TestStep_InvestmentShortfallIsBorrowed(t *testing.T) {
	cfg := testConfig()
	cfg.Welfare.PublicSpendingShare = 0
	s := newSim(t, cfg)

	var f *agents.Firm
	for _, c := range s.Firms {
		if c.Good != agents.NecessityGood {
			f = c
			break
		}
	}
	require.NotNil(t, f)
	f.Cash = 0
	f.Inventory = agents.GoodVector{}
	f.Employees = nil
	f.Vacancies = 0
	capital := f.Capital
	rate := s.Finance.LoanRate() / float64(cfg.Finance.PeriodsPerYear)

	investment := 500.0
	zero := 0
	rec, err := s.Step([]intent.Raw{{Kind: intent.KindFirm, ID: uint64(f.ID), Firm: &intent.FirmIntent{
		Investment: &investment,
		Vacancies:  &zero,
	}}})
	require.NoError(t, err)

	assert.InDelta(t, capital+investment, f.Capital, 1e-9)
	assert.InDelta(t, investment*(1+rate), s.Finance.LoanBalance(f.ID), 1e-9)
	assert.InDelta(t, s.Finance.LoanBalance(f.ID), f.Debt, 1e-12)
	assert.InDelta(t, 0.0, f.Cash, 1e-9)
	assert.Zero(t, f.PendingInvestment)
	if rec.LoanToDeposit > 0 {
		assert.InDelta(t, s.Finance.LoanToDeposit(), rec.LoanToDeposit, 1e-12)
	}
}

func TestBuildOrders_QuantityFromCheapestListing(t *testing.T) {
	s := newSim(t, testConfig())
	h := s.Households[0]
	h.Cash = 1000

	listings := []economy.Listing{
		{Firm: 1, Good: agents.GoodBread, UnitPrice: 4, Quantity: 1},
		{Firm: 2, Good: agents.GoodBread, UnitPrice: 2.5, Quantity: 1},
	}
	batch, errs := intent.Parse([]intent.Raw{{Kind: intent.KindHousehold, ID: uint64(h.ID), Household: &intent.HouseholdIntent{
		Consumption: map[string]float64{"bread": 50, "rent": 400},
		MaxPrices:   map[string]float64{"bread": 3},
	}}}, s)
	require.Empty(t, errs)

	byGood := map[agents.GoodID]economy.Order{}
	for _, o := range s.buildOrders(newPeriodRun(0), batch, listings) {
		if o.Household == h.ID {
			byGood[o.Good] = o
		}
	}
	require.Len(t, byGood, 2)
	assert.InDelta(t, 20.0, byGood[agents.GoodBread].Quantity, 1e-12)
	assert.Equal(t, 3.0, byGood[agents.GoodBread].MaxPrice)
	assert.InDelta(t, 400/s.Goods.Prices()[agents.GoodRent], byGood[agents.GoodRent].Quantity, 1e-12, "unlisted goods use the market price")
	assert.Zero(t, byGood[agents.GoodRent].MaxPrice)
}

func TestStep_PriceCapLeavesDemandUnmet(t *testing.T) {
	s := newSim(t, testConfig())
	bakery := s.Firms[0]
	require.Equal(t, agents.GoodBread, bakery.Good)
	bakery.Inventory[agents.GoodBread] = 10000
	price := bakery.Prices[agents.GoodBread]
	h := s.Households[0]
	h.Cash = 1000

	rec, err := s.Step([]intent.Raw{{Kind: intent.KindHousehold, ID: uint64(h.ID), Household: &intent.HouseholdIntent{
		Consumption: map[string]float64{"bread": 40},
		MaxPrices:   map[string]float64{"bread": price / 2},
	}}})
	require.NoError(t, err)

	assert.Zero(t, h.Period.TotalSpending)
	assert.InDelta(t, 40/price, rec.UnmetDemand["bread"], 1e-9)
}

func TestStep_HiresWhenMatchingIsCertain(t *testing.T) {
	cfg := testConfig()
	cfg.Labor.MatchProbability = 1
	cfg.Labor.ScoreThreshold = 0
	s := newSim(t, cfg)

	rec, err := s.Step(nil)
	require.NoError(t, err)

	assert.Equal(t, 15, rec.Employed)
	assert.Zero(t, rec.Unemployment)
	for _, h := range s.Households {
		require.NotNil(t, h.Employer)
		assert.True(t, s.Firm(*h.Employer).HasEmployee(h.ID))
	}
}

func runWithHeuristic(t *testing.T, s *Simulation, periods int) []indicators.HistoryRecord {
	t.Helper()
	r := NewRunner(s, intent.NewHeuristic(intent.DefaultHeuristicConfig(), s.Seed()))
	var out []indicators.HistoryRecord
	r.OnPeriod = func(_ *Simulation, rec indicators.HistoryRecord) error {
		out = append(out, rec)
		return nil
	}
	require.NoError(t, r.Run(context.Background(), periods))
	return out
}

func TestRun_Deterministic(t *testing.T) {
	cfg := config.Default()
	a := runWithHeuristic(t, newSim(t, cfg), 8)
	b := runWithHeuristic(t, newSim(t, cfg), 8)
	assert.Equal(t, a, b)

	cfg.Simulation.Seed = 43
	c := runWithHeuristic(t, newSim(t, cfg), 8)
	assert.NotEqual(t, a, c)
}

func TestRestore_ResumeMatchesContinuousRun(t *testing.T) {
	cfg := config.Default()
	full := runWithHeuristic(t, newSim(t, cfg), 6)

	s := newSim(t, cfg)
	runWithHeuristic(t, s, 3)
	st := s.Snapshot()
	data, err := st.Marshal()
	require.NoError(t, err)

	back, err := UnmarshalState(data)
	require.NoError(t, err)
	hist, err := indicators.RestoreHistory(s.History.Records())
	require.NoError(t, err)
	resumed, err := Restore(cfg, back, hist)
	require.NoError(t, err)

	rest := runWithHeuristic(t, resumed, 3)
	assert.Equal(t, full[3:], rest)
}

func TestRestore_RejectsMismatchedHistory(t *testing.T) {
	cfg := testConfig()
	s := newSim(t, cfg)
	_, err := s.Step(nil)
	require.NoError(t, err)

	_, err = Restore(cfg, s.Snapshot(), indicators.NewHistory())
	assert.Error(t, err)
}

func TestRunner_FallsBackWhenProviderFails(t *testing.T) {
	s := newSim(t, testConfig())
	r := NewRunner(s, intent.ProviderFunc(func(context.Context, *intent.Observation) ([]intent.Raw, error) {
		return nil, errors.New("provider down")
	}))

	require.NoError(t, r.Run(context.Background(), 2))
	assert.Equal(t, 2, s.History.Len())
}

func TestRunner_StopsOnCallbackError(t *testing.T) {
	s := newSim(t, testConfig())
	r := NewRunner(s, nil)
	r.OnPeriod = func(*Simulation, indicators.HistoryRecord) error { return errors.New("disk full") }

	err := r.Run(context.Background(), 5)
	assert.Error(t, err)
	assert.Equal(t, 1, s.History.Len())
}

func TestRunner_HonorsCancelledContext(t *testing.T) {
	s := newSim(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRunner(s, nil).Run(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.History.Len())
}

func TestObserve(t *testing.T) {
	s := newSim(t, testConfig())
	obs := s.Observe()

	assert.Equal(t, 0, obs.Period)
	assert.Len(t, obs.Households, 10)
	assert.Len(t, obs.Firms, 12)
	assert.Equal(t, agents.BasePrices(), obs.Prices)
	assert.Equal(t, 1000.0, obs.MinimumWage)
}
