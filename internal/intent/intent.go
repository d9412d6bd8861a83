// Package intent is the boundary between the untrusted decision provider
// and the simulation. Providers emit loosely shaped Raw intents; Parse
// validates them once into typed per-agent decisions. A malformed part of an
// intent marks the agent as skipped for the stage that part feeds.
package intent

import (
	"maps"
	"math"
	"slices"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/simerr"
)

// Stage names a period stage.
type Stage string

const (
	StageProductionTrading Stage = "production_trading"
	StageTaxationDividend  Stage = "taxation_dividend"
	StageMetabolic         Stage = "metabolic"
	StageRevision          Stage = "revision"
)

// Agent kinds used in Raw.Kind.
const (
	KindHousehold = "household"
	KindFirm      = "firm"
)

// Raw is one agent's intent as produced by a provider. Exactly one of
// Household or Firm must be set, matching Kind.
type Raw struct {
	Kind      string           `json:"kind"`
	ID        uint64           `json:"id"`
	Household *HouseholdIntent `json:"household,omitempty"`
	Firm      *FirmIntent      `json:"firm,omitempty"`
}

// HouseholdIntent is a household's raw decision. Nil fields keep defaults.
type HouseholdIntent struct {
	// Consumption budget per good key.
	Consumption map[string]float64 `json:"consumption,omitempty"`
	// MaxPrices caps the unit price paid per good key.
	MaxPrices map[string]float64 `json:"max_prices,omitempty"`

	DesiredWage  *float64 `json:"desired_wage,omitempty"`
	SearchEffort *float64 `json:"search_effort,omitempty"` // 0 stops searching

	// Savings moves cash into deposits; negative withdraws.
	Savings *float64 `json:"savings,omitempty"`

	InvestInSkills bool `json:"invest_in_skills,omitempty"`
	SeekHousing    bool `json:"seek_housing,omitempty"`
}

// FirmIntent is a firm's raw decision. Nil fields keep defaults.
type FirmIntent struct {
	TargetOutput *float64           `json:"target_output,omitempty"`
	Prices       map[string]float64 `json:"prices,omitempty"`
	Vacancies    *int               `json:"vacancies,omitempty"`
	OfferedWage  *float64           `json:"offered_wage,omitempty"`
	Layoffs      *int               `json:"layoffs,omitempty"`
	Investment   *float64           `json:"investment,omitempty"`
}

// HouseholdDecision is a validated household intent.
type HouseholdDecision struct {
	// Consumption is the budget per good; nil applies the default rule.
	Consumption *agents.GoodVector
	MaxPrices   *agents.GoodVector // 0 entries are uncapped

	DesiredWage  float64 // 0 keeps the current desired wage
	SearchEffort float64
	Savings      *float64

	InvestInSkills bool
	SeekHousing    bool

	// Skip holds, per stage, why the agent sits that stage out.
	Skip map[Stage]error
}

// FirmDecision is a validated firm intent.
type FirmDecision struct {
	TargetOutput *float64
	Prices       *agents.GoodVector // 0 entries keep current prices
	Vacancies    *int
	OfferedWage  float64 // 0 keeps the current offer
	Layoffs      int
	Investment   *float64

	Skip map[Stage]error
}

// Skipped returns the error that excludes the agent from stage, if any.
func (d HouseholdDecision) Skipped(stage Stage) error { return d.Skip[stage] }

// Skipped returns the error that excludes the agent from stage, if any.
func (d FirmDecision) Skipped(stage Stage) error { return d.Skip[stage] }

// DefaultHouseholdDecision searches fully and otherwise keeps defaults.
func DefaultHouseholdDecision() HouseholdDecision {
	return HouseholdDecision{SearchEffort: 1}
}

// Batch is one period's validated decisions.
type Batch struct {
	Households map[agents.HouseholdID]HouseholdDecision
	Firms      map[agents.FirmID]FirmDecision
}

// Household returns the decision for id, or the default.
func (b *Batch) Household(id agents.HouseholdID) HouseholdDecision {
	if b != nil {
		if d, ok := b.Households[id]; ok {
			return d
		}
	}
	return DefaultHouseholdDecision()
}

// Firm returns the decision for id, or the zero decision.
func (b *Batch) Firm(id agents.FirmID) FirmDecision {
	if b != nil {
		if d, ok := b.Firms[id]; ok {
			return d
		}
	}
	return FirmDecision{}
}

// Directory answers whether agents exist.
type Directory interface {
	HasHousehold(agents.HouseholdID) bool
	HasFirm(agents.FirmID) bool
}

// Parse validates raw intents. Intents naming unknown agents are dropped with
// a MarketState error. Malformed intents are kept as decisions that skip the
// affected stages, and the reason is returned as an InvalidIntent error. A
// later intent for the same agent replaces an earlier one.
func Parse(raws []Raw, dir Directory) (*Batch, []error) {
	b := &Batch{
		Households: make(map[agents.HouseholdID]HouseholdDecision),
		Firms:      make(map[agents.FirmID]FirmDecision),
	}
	var errs []error

	for _, r := range raws {
		switch r.Kind {
		case KindHousehold:
			id := agents.HouseholdID(r.ID)
			if !dir.HasHousehold(id) {
				errs = append(errs, simerr.MarketState(KindHousehold, r.ID, "intent for unknown household"))
				continue
			}
			if r.Household == nil || r.Firm != nil {
				err := simerr.InvalidIntent(KindHousehold, r.ID, "household intent has wrong payload")
				b.Households[id] = HouseholdDecision{Skip: skipAll(err)}
				errs = append(errs, err)
				continue
			}
			d, perr := parseHousehold(r.ID, r.Household)
			b.Households[id] = d
			errs = append(errs, perr...)

		case KindFirm:
			id := agents.FirmID(r.ID)
			if !dir.HasFirm(id) {
				errs = append(errs, simerr.MarketState(KindFirm, r.ID, "intent for unknown firm"))
				continue
			}
			if r.Firm == nil || r.Household != nil {
				err := simerr.InvalidIntent(KindFirm, r.ID, "firm intent has wrong payload")
				b.Firms[id] = FirmDecision{Skip: skipAll(err)}
				errs = append(errs, err)
				continue
			}
			d, perr := parseFirm(r.ID, r.Firm)
			b.Firms[id] = d
			errs = append(errs, perr...)

		default:
			errs = append(errs, simerr.InvalidIntent(r.Kind, r.ID, "unknown intent kind %q", r.Kind))
		}
	}
	return b, errs
}

func skipAll(err error) map[Stage]error {
	return map[Stage]error{
		StageProductionTrading: err,
		StageRevision:          err,
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func parseHousehold(id uint64, in *HouseholdIntent) (HouseholdDecision, []error) {
	d := DefaultHouseholdDecision()
	d.InvestInSkills = in.InvestInSkills
	d.SeekHousing = in.SeekHousing
	var errs []error
	skip := func(stage Stage, format string, args ...any) {
		err := simerr.InvalidIntent(KindHousehold, id, format, args...).WithStage(string(stage))
		if d.Skip == nil {
			d.Skip = make(map[Stage]error)
		}
		if d.Skip[stage] == nil {
			d.Skip[stage] = err
		}
		errs = append(errs, err)
	}

	if in.Consumption != nil {
		var v agents.GoodVector
		ok := true
		for _, key := range slices.Sorted(maps.Keys(in.Consumption)) {
			budget := in.Consumption[key]
			g, found := agents.LookupGood(key)
			if !found {
				skip(StageProductionTrading, "unknown good %q", key)
				ok = false
				continue
			}
			if budget < 0 || !finite(budget) {
				skip(StageProductionTrading, "consumption budget %v for %s", budget, key)
				ok = false
				continue
			}
			v[g] = budget
		}
		if ok {
			d.Consumption = &v
		}
	}

	if in.MaxPrices != nil {
		var v agents.GoodVector
		ok := true
		for _, key := range slices.Sorted(maps.Keys(in.MaxPrices)) {
			price := in.MaxPrices[key]
			g, found := agents.LookupGood(key)
			if !found {
				skip(StageProductionTrading, "unknown good %q", key)
				ok = false
				continue
			}
			if price <= 0 || !finite(price) {
				skip(StageProductionTrading, "non-positive price cap %v for %s", price, key)
				ok = false
				continue
			}
			v[g] = price
		}
		if ok {
			d.MaxPrices = &v
		}
	}

	if in.DesiredWage != nil {
		if w := *in.DesiredWage; w <= 0 || !finite(w) {
			skip(StageRevision, "desired wage %v", w)
		} else {
			d.DesiredWage = w
		}
	}
	if in.SearchEffort != nil {
		if e := *in.SearchEffort; e < 0 || e > 1 || !finite(e) {
			skip(StageRevision, "search effort %v outside [0,1]", e)
		} else {
			d.SearchEffort = e
		}
	}
	if in.Savings != nil {
		if s := *in.Savings; !finite(s) {
			skip(StageRevision, "savings %v", s)
		} else {
			v := s
			d.Savings = &v
		}
	}
	return d, errs
}

func parseFirm(id uint64, in *FirmIntent) (FirmDecision, []error) {
	var d FirmDecision
	var errs []error
	skip := func(stage Stage, format string, args ...any) {
		err := simerr.InvalidIntent(KindFirm, id, format, args...).WithStage(string(stage))
		if d.Skip == nil {
			d.Skip = make(map[Stage]error)
		}
		if d.Skip[stage] == nil {
			d.Skip[stage] = err
		}
		errs = append(errs, err)
	}

	if in.TargetOutput != nil {
		if t := *in.TargetOutput; t < 0 || !finite(t) {
			skip(StageProductionTrading, "target output %v", t)
		} else {
			v := t
			d.TargetOutput = &v
		}
	}
	if in.Prices != nil {
		var v agents.GoodVector
		ok := true
		for _, key := range slices.Sorted(maps.Keys(in.Prices)) {
			p := in.Prices[key]
			g, found := agents.LookupGood(key)
			if !found {
				skip(StageProductionTrading, "unknown good %q", key)
				ok = false
				continue
			}
			if p <= 0 || !finite(p) {
				skip(StageProductionTrading, "non-positive price %v for %s", p, key)
				ok = false
				continue
			}
			v[g] = p
		}
		if ok {
			d.Prices = &v
		}
	}
	if in.Vacancies != nil {
		if n := *in.Vacancies; n < 0 {
			skip(StageRevision, "vacancies %d", n)
		} else {
			v := n
			d.Vacancies = &v
		}
	}
	if in.OfferedWage != nil {
		if w := *in.OfferedWage; w <= 0 || !finite(w) {
			skip(StageRevision, "offered wage %v", w)
		} else {
			d.OfferedWage = w
		}
	}
	if in.Layoffs != nil {
		if n := *in.Layoffs; n < 0 {
			skip(StageRevision, "layoffs %d", n)
		} else {
			d.Layoffs = n
		}
	}
	if in.Investment != nil {
		if inv := *in.Investment; inv < 0 || !finite(inv) {
			skip(StageRevision, "investment %v", inv)
		} else {
			v := inv
			d.Investment = &v
		}
	}
	return d, errs
}
