package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/intent"
)

func testObservation() *intent.Observation {
	obs := &intent.Observation{
		Period:      3,
		Phase:       "development",
		MinimumWage: 1000,
		Households: []intent.HouseholdView{
			{ID: 1, Cash: 5000, DesiredWage: 2000},
		},
		Firms: []intent.FirmView{
			{ID: 1, Good: agents.GoodBread, Cash: 50000, Price: 20, Employees: 2, OfferedWage: 2000, Output: 10},
			{ID: 2, Good: agents.GoodProduce, Cash: 50000, Price: 30, Employees: 1, OfferedWage: 2000, Output: 5},
		},
	}
	for _, g := range agents.Catalog {
		obs.Prices[g.ID] = g.BasePrice
	}
	return obs
}

// fakeAPI answers every request with text and counts the calls.
func fakeAPI(t *testing.T, status int, text string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)

		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":"overloaded"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"text": text}},
			"usage":   map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestProvider(t *testing.T, url string) (*Provider, *intent.Heuristic) {
	t.Helper()
	h := intent.NewHeuristic(intent.DefaultHeuristicConfig(), 42)
	var client *Client
	if url != "" {
		client = NewClient("test-key", Options{URL: url})
	}
	p, err := NewProvider(client, h, 8)
	require.NoError(t, err)
	return p, h
}

func firmIntent(raws []intent.Raw, id uint64) *intent.FirmIntent {
	for _, r := range raws {
		if r.Kind == intent.KindFirm && r.ID == id {
			return r.Firm
		}
	}
	return nil
}

const plansText = `Here are the plans:
[{"id": 1, "price": 25, "vacancies": 3, "offered_wage": 2500, "reasoning": "bread sells out"},
 {"id": 2, "price": -4, "offered_wage": 10},
 {"id": 77, "price": 10}]`

func TestProvider_MergesPlansOverHeuristic(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, plansText)
	p, h := newTestProvider(t, srv.URL)
	obs := testObservation()

	raws, err := p.Decide(context.Background(), obs)
	require.NoError(t, err)
	base, err := h.Decide(context.Background(), obs)
	require.NoError(t, err)
	require.Len(t, raws, len(base))

	bakery := firmIntent(raws, 1)
	require.NotNil(t, bakery)
	assert.Equal(t, 25.0, bakery.Prices["bread"])
	assert.Equal(t, 3, *bakery.Vacancies)
	assert.Equal(t, 2500.0, *bakery.OfferedWage)

	// Invalid fields keep the heuristic answer.
	assert.Equal(t, firmIntent(base, 2), firmIntent(raws, 2))
	assert.Equal(t, base[0], raws[0], "households keep heuristic intents")
}

func TestProvider_CachesByPrompt(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, plansText)
	p, _ := newTestProvider(t, srv.URL)
	obs := testObservation()

	_, err := p.Decide(context.Background(), obs)
	require.NoError(t, err)
	_, err = p.Decide(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	obs.Period++
	_, err = p.Decide(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProvider_FallsBackOnAPIError(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusServiceUnavailable, "")
	p, h := newTestProvider(t, srv.URL)
	obs := testObservation()

	raws, err := p.Decide(context.Background(), obs)
	require.NoError(t, err)
	base, _ := h.Decide(context.Background(), obs)
	assert.Equal(t, base, raws)
}

func TestProvider_FallsBackOnUnreadableAnswer(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, "I would rather not say.")
	p, h := newTestProvider(t, srv.URL)
	obs := testObservation()

	raws, err := p.Decide(context.Background(), obs)
	require.NoError(t, err)
	base, _ := h.Decide(context.Background(), obs)
	assert.Equal(t, base, raws)
}

func TestProvider_DisabledClientUsesHeuristic(t *testing.T) {
	p, h := newTestProvider(t, "")
	obs := testObservation()

	raws, err := p.Decide(context.Background(), obs)
	require.NoError(t, err)
	base, _ := h.Decide(context.Background(), obs)
	assert.Equal(t, base, raws)
}

func TestNewProvider_RequiresFallback(t *testing.T) {
	_, err := NewProvider(nil, nil, 0)
	assert.Error(t, err)
}

func TestClient_RateLimit(t *testing.T) {
	srv, calls := fakeAPI(t, http.StatusOK, "ok")
	c := NewClient("test-key", Options{URL: srv.URL, CallsPerMinute: 1})

	text, err := c.Complete(context.Background(), "sys", "one", 10)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	_, err = c.Complete(context.Background(), "sys", "two", 10)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_EmptyKeyDisables(t *testing.T) {
	c := NewClient("", Options{})
	assert.Nil(t, c)
	assert.False(t, c.Enabled())
}

func TestParseFirmPlans(t *testing.T) {
	plans, err := parseFirmPlans(plansText)
	require.NoError(t, err)
	assert.Len(t, plans, 3)
	assert.Equal(t, "bread sells out", plans[0].Reasoning)

	_, err = parseFirmPlans("no array here")
	assert.Error(t, err)
	_, err = parseFirmPlans("[not json]")
	assert.Error(t, err)
}

func testRecord() *indicators.HistoryRecord {
	return &indicators.HistoryRecord{
		Period:       4,
		Phase:        "development",
		GDP:          120000,
		RealGDP:      110000,
		Unemployment: 0.08,
		PriceIndex:   109,
		Households:   50,
		Employed:     46,
		Prices:       map[string]float64{"bread": 32, "produce": 30, "rent": 700},
	}
}

func TestGenerateBulletin_Fallback(t *testing.T) {
	prev := testRecord()
	prev.RealGDP = 100000
	b := GenerateBulletin(context.Background(), nil, testRecord(), prev)

	assert.Equal(t, 4, b.Period)
	assert.Contains(t, b.Content, "Period 4")
	assert.Contains(t, b.Content, "+10.0%")
	assert.Contains(t, b.Content, "Bread")
}

func TestGenerateBulletin_UsesModel(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, "All quiet on the bread front.")
	c := NewClient("test-key", Options{URL: srv.URL})

	b := GenerateBulletin(context.Background(), c, testRecord(), nil)
	assert.Equal(t, "All quiet on the bread front.", b.Content)
}

func TestPriceMoves_LargestFirst(t *testing.T) {
	moves := PriceMoves(testRecord(), 2)
	require.Len(t, moves, 2)
	assert.Equal(t, "Bread", moves[0].Good)
	assert.InDelta(t, 1.6, moves[0].Ratio, 1e-12)
	assert.Equal(t, "Basic Housing", moves[1].Good)
}
