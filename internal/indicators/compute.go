// Package indicators derives macroeconomic indicators from a period's
// aggregate state and keeps the append-only history of results.
package indicators

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/simerr"
)

// DefaultDepreciationRate converts the capital stock into the investment
// flow counted in GDP.
const DefaultDepreciationRate = 0.005

// BaseIndex is the price index of the base period.
const BaseIndex = 100.0

// Aggregates is the measured end-of-period state the engine hands over.
type Aggregates struct {
	Period int
	Phase  string

	Consumption    float64   // value of settled goods transactions
	FirmCapital    []float64 // capital per firm
	PublicSpending float64

	TaxRevenue float64
	Transfers  float64

	Households    int
	Employed      int
	Firms         int
	BankruptFirms int
	FillRate      float64

	// Disposable income per household.
	Incomes []float64

	FoodSpending  float64
	TotalSpending float64

	Prices       agents.GoodVector
	Demands      agents.GoodVector
	UnmetDemand  agents.GoodVector
	UnsoldSupply agents.GoodVector

	PolicyRate    float64
	DepositRate   float64
	LoanRate      float64
	LoanToDeposit float64

	Skipped []SkipRecord
}

// Engine computes HistoryRecords. It holds only constants.
type Engine struct {
	DepreciationRate float64
}

// NewEngine creates an indicator engine.
func NewEngine(depreciation float64) *Engine {
	if depreciation <= 0 {
		depreciation = DefaultDepreciationRate
	}
	return &Engine{DepreciationRate: depreciation}
}

// Compute derives the period's record from the aggregates and the history
// so far. It does not mutate either, so repeated calls on the same inputs
// return identical records.
func (e *Engine) Compute(agg Aggregates, hist *History) (HistoryRecord, error) {
	rec := HistoryRecord{
		Period:             agg.Period,
		Phase:              agg.Phase,
		Consumption:        agg.Consumption,
		Investment:         floats.Sum(agg.FirmCapital) * e.DepreciationRate,
		GovernmentSpending: agg.PublicSpending,
		TaxRevenue:         agg.TaxRevenue,
		Transfers:          agg.Transfers,
		PolicyRate:         agg.PolicyRate,
		DepositRate:        agg.DepositRate,
		LoanRate:           agg.LoanRate,
		LoanToDeposit:      agg.LoanToDeposit,
		Households:         agg.Households,
		Employed:           agg.Employed,
		Firms:              agg.Firms,
		BankruptFirms:      agg.BankruptFirms,
		VacancyFillRate:    agg.FillRate,
		Prices:             agg.Prices.ByKey(),
		Demands:            agg.Demands.ByKey(),
		UnmetDemand:        agg.UnmetDemand.ByKey(),
		UnsoldSupply:       agg.UnsoldSupply.ByKey(),
		Skipped:            append([]SkipRecord(nil), agg.Skipped...),
	}

	if agg.Households < 0 || agg.Employed < 0 || agg.Employed > agg.Households {
		return rec, simerr.InvariantViolation("population households=%d employed=%d", agg.Households, agg.Employed)
	}

	// Net exports are fixed at zero.
	rec.GDP = rec.Consumption + rec.Investment + rec.GovernmentSpending
	rec.Unemployment = UnemploymentRate(agg.Households-agg.Employed, agg.Households)
	rec.Gini = Gini(agg.Incomes)
	if agg.TotalSpending > 0 {
		rec.FoodShare = agg.FoodSpending / agg.TotalSpending
	}

	var prev *HistoryRecord
	if hist != nil {
		prev = hist.Latest()
	}
	if prev == nil {
		rec.PriceIndex = BaseIndex
	} else {
		rec.PriceIndex = PriceIndex(agg.Prices, hist.BasePrices())
		rec.Inflation = Inflation(rec.PriceIndex, prev.PriceIndex)
	}

	if math.IsNaN(rec.PriceIndex) || rec.PriceIndex <= 0 {
		return rec, simerr.InvariantViolation("price index %v at period %d", rec.PriceIndex, agg.Period)
	}
	rec.RealGDP = rec.GDP / (rec.PriceIndex / BaseIndex)

	for _, v := range []float64{rec.GDP, rec.Inflation, rec.Gini, rec.Unemployment} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return rec, simerr.InvariantViolation("non-finite indicator at period %d", agg.Period)
		}
	}
	if rec.GDP < 0 {
		return rec, simerr.InvariantViolation("negative GDP %v at period %d", rec.GDP, agg.Period)
	}
	return rec, nil
}

// UnemploymentRate is unemployed over labor force, 0 for an empty force.
func UnemploymentRate(unemployed, laborForce int) float64 {
	if laborForce <= 0 {
		return 0
	}
	return float64(unemployed) / float64(laborForce)
}

// PriceIndex is the basket-weighted price level relative to base, scaled so
// base prices give exactly 100.
func PriceIndex(prices, base agents.GoodVector) float64 {
	var w, p, b agents.GoodVector
	for i := range agents.Catalog {
		w[i] = agents.Catalog[i].BasketWeight
		p[i] = prices[i]
		b[i] = base[i]
	}
	denom := floats.Dot(w[:], b[:])
	if denom <= 0 {
		return math.NaN()
	}
	return BaseIndex * floats.Dot(w[:], p[:]) / denom
}

// Inflation is the relative change of the price index.
func Inflation(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous
}

// Gini computes G = 2·Σ(i·xᵢ)/(n·Σxᵢ) − (n+1)/n over incomes sorted
// ascending with 1-based rank i. Negative incomes count as zero; the result
// is clamped to [0,1]. All-zero or empty input gives 0.
func Gini(incomes []float64) float64 {
	n := len(incomes)
	if n < 2 {
		return 0
	}
	x := make([]float64, n)
	for i, v := range incomes {
		x[i] = math.Max(0, v)
	}
	sort.Float64s(x)

	total := floats.Sum(x)
	if total <= 0 {
		return 0
	}
	ranks := make([]float64, n)
	floats.Span(ranks, 1, float64(n))

	nf := float64(n)
	g := 2*floats.Dot(ranks, x)/(nf*total) - (nf+1)/nf
	return math.Min(1, math.Max(0, g))
}
