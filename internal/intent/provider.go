package intent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/citysim/internal/agents"
)

// HouseholdView is what a provider sees of one household.
type HouseholdView struct {
	ID               agents.HouseholdID `json:"id"`
	Cash             float64            `json:"cash"`
	Deposits         float64            `json:"deposits"`
	Employed         bool               `json:"employed"`
	Wage             float64            `json:"wage"`
	DesiredWage      float64            `json:"desired_wage"`
	MonthsUnemployed int                `json:"months_unemployed"`
	Skills           agents.SkillSet    `json:"-"`
	LastIncome       float64            `json:"last_income"`
}

// FirmView is what a provider sees of one firm.
type FirmView struct {
	ID          agents.FirmID `json:"id"`
	Good        agents.GoodID `json:"good"`
	Cash        float64       `json:"cash"`
	Capital     float64       `json:"capital"`
	Debt        float64       `json:"debt"`
	Inventory   float64       `json:"inventory"` // own good
	Price       float64       `json:"price"`     // own good
	Employees   int           `json:"employees"`
	Vacancies   int           `json:"vacancies"`
	OfferedWage float64       `json:"offered_wage"`
	Output      float64       `json:"output"`
	Sales       float64       `json:"sales"`
	Revenue     float64       `json:"revenue"`
	Bankrupt    bool          `json:"bankrupt"`
}

// Observation is the end-of-previous-period state offered to providers.
type Observation struct {
	Period int    `json:"period"`
	Phase  string `json:"phase"`

	Prices       agents.GoodVector `json:"-"`
	Demands      agents.GoodVector `json:"-"`
	UnmetDemand  agents.GoodVector `json:"-"`
	UnsoldSupply agents.GoodVector `json:"-"`

	PolicyRate   float64 `json:"policy_rate"`
	DepositRate  float64 `json:"deposit_rate"`
	LoanRate     float64 `json:"loan_rate"`
	Unemployment float64 `json:"unemployment_rate"`
	Inflation    float64 `json:"inflation"`
	MinimumWage  float64 `json:"minimum_wage"`

	Households []HouseholdView `json:"households"`
	Firms      []FirmView      `json:"firms"`
}

// Provider supplies one period's intents. Providers are untrusted: their
// output is validated by Parse, and failures fall back to defaults.
type Provider interface {
	Decide(ctx context.Context, obs *Observation) ([]Raw, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, obs *Observation) ([]Raw, error)

func (f ProviderFunc) Decide(ctx context.Context, obs *Observation) ([]Raw, error) {
	return f(ctx, obs)
}

// NoOp returns no intents, so every agent follows the default rules.
type NoOp struct{}

func (NoOp) Decide(context.Context, *Observation) ([]Raw, error) { return nil, nil }

// Fallback calls Primary under a timeout and uses Secondary when Primary
// errors or does not answer in time. It never blocks past the timeout
// even if Primary ignores its context.
type Fallback struct {
	Primary   Provider
	Secondary Provider
	Timeout   time.Duration
}

type decideResult struct {
	raws []Raw
	err  error
}

// Decide implements Provider.
func (f *Fallback) Decide(ctx context.Context, obs *Observation) ([]Raw, error) {
	secondary := f.Secondary
	if secondary == nil {
		secondary = NoOp{}
	}
	if f.Primary == nil {
		return secondary.Decide(ctx, obs)
	}

	pctx := ctx
	cancel := func() {}
	if f.Timeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, f.Timeout)
	}
	defer cancel()

	done := make(chan decideResult, 1)
	go func() {
		raws, err := f.Primary.Decide(pctx, obs)
		done <- decideResult{raws, err}
	}()

	var res decideResult
	select {
	case res = <-done:
	case <-pctx.Done():
		res.err = fmt.Errorf("decision provider: %w", pctx.Err())
	}
	if res.err == nil {
		return res.raws, nil
	}

	slog.Warn("decision provider failed, using fallback", "period", obs.Period, "error", res.err)
	raws, err := secondary.Decide(ctx, obs)
	if err != nil {
		slog.Warn("fallback provider failed, using defaults", "period", obs.Period, "error", err)
		return nil, nil
	}
	return raws, nil
}
