package indicators

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/simerr"
)

// giniLoop is the textbook scalar form used to cross-check Gini.
func giniLoop(incomes []float64) float64 {
	x := append([]float64(nil), incomes...)
	sort.Float64s(x)
	n := float64(len(x))
	var weighted, total float64
	for i, v := range x {
		weighted += float64(i+1) * v
		total += v
	}
	if total == 0 {
		return 0
	}
	return 2*weighted/(n*total) - (n+1)/n
}

func TestGini_KnownValues(t *testing.T) {
	assert.InDelta(t, 0.0, Gini([]float64{10, 10, 10, 10}), 1e-12)
	assert.InDelta(t, 0.75, Gini([]float64{0, 0, 0, 100}), 1e-12)
	assert.InDelta(t, 0.75, Gini([]float64{100, 0, 0, 0}), 1e-12, "input order does not matter")
	assert.Zero(t, Gini(nil))
	assert.Zero(t, Gini([]float64{42}))
	assert.Zero(t, Gini([]float64{0, 0, 0}))
}

func TestGini_NegativeIncomesClampToZero(t *testing.T) {
	assert.InDelta(t, Gini([]float64{0, 0, 0, 100}), Gini([]float64{-50, 0, -1, 100}), 1e-12)
}

func TestGini_ScaleInvariantAndMatchesLoop(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for round := 0; round < 50; round++ {
		n := 2 + rng.Intn(200)
		incomes := make([]float64, n)
		for i := range incomes {
			incomes[i] = rng.ExpFloat64() * 3000
		}
		g := Gini(incomes)
		assert.InDelta(t, giniLoop(incomes), g, 1e-9)

		k := 0.01 + rng.Float64()*100
		scaled := make([]float64, n)
		for i, v := range incomes {
			scaled[i] = v * k
		}
		assert.InDelta(t, g, Gini(scaled), 1e-9)
		assert.GreaterOrEqual(t, g, 0.0)
		assert.LessOrEqual(t, g, 1.0)
	}
}

func TestPriceIndex_BaseIsHundred(t *testing.T) {
	base := agents.BasePrices()
	assert.InDelta(t, 100.0, PriceIndex(base, base), 1e-9)

	doubled := base
	for i := range doubled {
		doubled[i] *= 2
	}
	assert.InDelta(t, 200.0, PriceIndex(doubled, base), 1e-9)
}

func baseAggregates(period int) Aggregates {
	return Aggregates{
		Period:         period,
		Phase:          "move_in",
		Consumption:    1000,
		FirmCapital:    []float64{100000, 50000},
		PublicSpending: 200,
		Households:     10,
		Employed:       7,
		Firms:          2,
		Incomes:        []float64{1, 2, 3, 4},
		FoodSpending:   300,
		TotalSpending:  1000,
		Prices:         agents.BasePrices(),
	}
}

func TestCompute_PeriodZero(t *testing.T) {
	e := NewEngine(0)

	rec, err := e.Compute(baseAggregates(0), NewHistory())
	require.NoError(t, err)

	assert.Equal(t, 100.0, rec.PriceIndex)
	assert.Zero(t, rec.Inflation)
	assert.InDelta(t, 750.0, rec.Investment, 1e-9)
	assert.InDelta(t, 1000+750+200, rec.GDP, 1e-9)
	assert.InDelta(t, rec.GDP, rec.RealGDP, 1e-9)
	assert.InDelta(t, 0.3, rec.Unemployment, 1e-12)
	assert.InDelta(t, 0.3, rec.FoodShare, 1e-12)
	assert.InDelta(t, 0.25, rec.Gini, 1e-12)
}

func TestCompute_InflationFromPriceIndex(t *testing.T) {
	e := NewEngine(DefaultDepreciationRate)
	h := NewHistory()

	rec0, err := e.Compute(baseAggregates(0), h)
	require.NoError(t, err)
	require.NoError(t, h.Append(rec0))

	agg := baseAggregates(1)
	for i := range agg.Prices {
		agg.Prices[i] *= 1.1
	}
	// GDP changes independently of prices.
	agg.Consumption = 5000

	rec1, err := e.Compute(agg, h)
	require.NoError(t, err)

	assert.InDelta(t, 110.0, rec1.PriceIndex, 1e-9)
	assert.InDelta(t, 0.1, rec1.Inflation, 1e-9)
	assert.InDelta(t, rec1.GDP/1.1, rec1.RealGDP, 1e-9)
}

func TestCompute_Idempotent(t *testing.T) {
	e := NewEngine(DefaultDepreciationRate)
	h := NewHistory()
	rec0, err := e.Compute(baseAggregates(0), h)
	require.NoError(t, err)
	require.NoError(t, h.Append(rec0))

	agg := baseAggregates(1)
	a, errA := e.Compute(agg, h)
	b, errB := e.Compute(agg, h)

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, h.Len())
}

func TestCompute_InvariantViolations(t *testing.T) {
	e := NewEngine(DefaultDepreciationRate)

	agg := baseAggregates(0)
	agg.Employed = 11
	_, err := e.Compute(agg, NewHistory())
	assert.True(t, simerr.Is(err, simerr.KindInvariantViolation))

	h := NewHistory()
	rec0, err := e.Compute(baseAggregates(0), h)
	require.NoError(t, err)
	require.NoError(t, h.Append(rec0))

	agg = baseAggregates(1)
	agg.Prices = agents.GoodVector{}
	_, err = e.Compute(agg, h)
	assert.True(t, simerr.IsFatal(err))
}

func TestHistoryRecord_JSONRoundTrip(t *testing.T) {
	e := NewEngine(DefaultDepreciationRate)
	agg := baseAggregates(0)
	agg.Incomes = []float64{1234.5678, 99.125, 7e-3}
	agg.Skipped = []SkipRecord{{Stage: "revision", AgentKind: "firm", AgentID: 3, Kind: "INVALID_INTENT", Reason: "bad"}}
	rec, err := e.Compute(agg, nil)
	require.NoError(t, err)

	data, err := rec.Marshal()
	require.NoError(t, err)
	back, err := UnmarshalRecord(data)
	require.NoError(t, err)

	assert.Equal(t, rec, back)
}

func TestHistory_AppendAndBase(t *testing.T) {
	h := NewHistory()
	assert.Nil(t, h.Latest())

	rec := HistoryRecord{Period: 0, Prices: map[string]float64{"bread": 21}, GDP: 10}
	require.NoError(t, h.Append(rec))
	require.NoError(t, h.Append(HistoryRecord{Period: 1, Prices: map[string]float64{"bread": 30}, GDP: 20}))

	assert.Equal(t, 21.0, h.BasePrices()[agents.GoodBread], "base fixed at first record")
	assert.Equal(t, []float64{10, 20}, h.Series(GDP))
	assert.Equal(t, 1, h.Latest().Period)
	assert.Len(t, h.Tail(1), 1)

	assert.Error(t, h.Append(HistoryRecord{Period: 5}))
}

func TestRestoreHistory(t *testing.T) {
	h, err := RestoreHistory([]HistoryRecord{{Period: 0}, {Period: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())

	_, err = RestoreHistory([]HistoryRecord{{Period: 0}, {Period: 3}})
	assert.Error(t, err)
}
