// Package api provides the read-only HTTP API over a running simulation.
// Every endpoint serves the state published after the latest completed
// period, never a period in progress.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/engine"
	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/llm"
)

// Status is the headline view of the simulation.
type Status struct {
	RunID         string  `json:"run_id,omitempty"`
	Seed          int64   `json:"seed"`
	Period        int     `json:"period"`
	Phase         string  `json:"phase"`
	Running       bool    `json:"running"`
	Households    int     `json:"households"`
	Employed      int     `json:"employed"`
	Firms         int     `json:"firms"`
	BankruptFirms int     `json:"bankrupt_firms"`
	Treasury      float64 `json:"treasury"`
	PolicyRate    float64 `json:"policy_rate"`
	DepositRate   float64 `json:"deposit_rate"`
	LoanRate      float64 `json:"loan_rate"`
}

// PriceEntry is one good's market state.
type PriceEntry struct {
	Good      string  `json:"good"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	BasePrice float64 `json:"base_price"`
	Demand    float64 `json:"demand"`
	Unmet     float64 `json:"unmet_demand"`
	Unsold    float64 `json:"unsold_supply"`
}

// FirmEntry is one firm's public state.
type FirmEntry struct {
	ID          agents.FirmID `json:"id"`
	Name        string        `json:"name"`
	Good        string        `json:"good"`
	Cash        float64       `json:"cash"`
	Capital     float64       `json:"capital"`
	Debt        float64       `json:"debt"`
	Employees   int           `json:"employees"`
	Vacancies   int           `json:"vacancies"`
	OfferedWage float64       `json:"offered_wage"`
	Price       float64       `json:"price"`
	Output      float64       `json:"output"`
	Sales       float64       `json:"sales"`
	Bankrupt    bool          `json:"bankrupt"`
}

// Server serves published simulation state over HTTP.
type Server struct {
	History *indicators.History
	LLM     *llm.Client

	limiter *RateLimiter

	mu     sync.RWMutex
	status Status
	prices []PriceEntry
	firms  []FirmEntry

	// Cached bulletin, regenerated at most once per period.
	bulletinMu     sync.Mutex
	cachedBulletin *llm.Bulletin
}

// NewServer creates a server over hist. Each client IP may make
// requestsPerMinute requests; 0 disables limiting.
func NewServer(hist *indicators.History, client *llm.Client, requestsPerMinute int) *Server {
	s := &Server{History: hist, LLM: client}
	if requestsPerMinute > 0 {
		s.limiter = NewRateLimiter(requestsPerMinute, time.Minute)
	}
	return s
}

// Publish copies the simulation's current state for serving. Call it between
// periods, for example from a runner's OnPeriod callback.
func (s *Server) Publish(sim *engine.Simulation, runID string, running bool) {
	st := Status{
		RunID:       runID,
		Seed:        sim.Seed(),
		Period:      sim.Period,
		Phase:       string(sim.Phase),
		Running:     running,
		Households:  len(sim.Households),
		Employed:    sim.Employed(),
		Firms:       len(sim.Firms),
		Treasury:    sim.Treasury,
		PolicyRate:  sim.Finance.PolicyRate,
		DepositRate: sim.Finance.DepositRate(),
		LoanRate:    sim.Finance.LoanRate(),
	}
	st.BankruptFirms = sim.Bankrupt()

	prices, demands := sim.Goods.Prices(), sim.Goods.Demands()
	pe := make([]PriceEntry, 0, agents.NumGoods)
	for _, g := range agents.Catalog {
		pe = append(pe, PriceEntry{
			Good:      g.Key,
			Name:      g.Name,
			Category:  g.Category.String(),
			Price:     prices[g.ID],
			BasePrice: g.BasePrice,
			Demand:    demands[g.ID],
			Unmet:     sim.LastUnmet[g.ID],
			Unsold:    sim.LastUnsold[g.ID],
		})
	}

	fe := make([]FirmEntry, 0, len(sim.Firms))
	for _, f := range sim.Firms {
		fe = append(fe, FirmEntry{
			ID:          f.ID,
			Name:        f.Name,
			Good:        f.Good.Key(),
			Cash:        f.Cash,
			Capital:     f.Capital,
			Debt:        f.Debt,
			Employees:   len(f.Employees),
			Vacancies:   f.Vacancies,
			OfferedWage: f.OfferedWage,
			Price:       f.Prices[f.Good],
			Output:      f.Output,
			Sales:       f.Sales,
			Bankrupt:    f.Bankrupt,
		})
	}

	s.mu.Lock()
	s.status, s.prices, s.firms = st, pe, fe
	s.mu.Unlock()
}

// SetRunning updates the running flag without republishing.
func (s *Server) SetRunning(running bool) {
	s.mu.Lock()
	s.status.Running = running
	s.mu.Unlock()
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.limit(s.handleStatus))
	mux.HandleFunc("GET /api/v1/history", s.limit(s.handleHistory))
	mux.HandleFunc("GET /api/v1/prices", s.limit(s.handlePrices))
	mux.HandleFunc("GET /api/v1/firms", s.limit(s.handleFirms))
	mux.HandleFunc("GET /api/v1/bulletin", s.limit(s.handleBulletin))

	return corsMiddleware(mux)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "rate_limited", s.limiter != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		slog.Info("HTTP API stopped")
		return nil
	}
}

func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return RateLimitMiddleware(s.limiter, next)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	writeJSON(w, st)
}

// handleHistory returns history records, oldest first. ?limit=N keeps the
// last N; 0 means all.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records := s.History.Records()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		records = s.History.Tail(n)
	}
	if records == nil {
		records = []indicators.HistoryRecord{}
	}
	writeJSON(w, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	period, prices := s.status.Period, s.prices
	s.mu.RUnlock()

	index := indicators.BaseIndex
	if last := s.History.Latest(); last != nil {
		index = last.PriceIndex
	}
	writeJSON(w, map[string]any{
		"period":      period,
		"price_index": index,
		"goods":       prices,
	})
}

func (s *Server) handleFirms(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	firms := s.firms
	s.mu.RUnlock()
	if firms == nil {
		firms = []FirmEntry{}
	}
	writeJSON(w, firms)
}

// handleBulletin serves the economic bulletin for the latest period.
func (s *Server) handleBulletin(w http.ResponseWriter, r *http.Request) {
	records := s.History.Tail(2)
	if len(records) == 0 {
		http.Error(w, "no completed periods yet", http.StatusNotFound)
		return
	}
	rec := &records[len(records)-1]
	var prev *indicators.HistoryRecord
	if len(records) == 2 {
		prev = &records[0]
	}

	s.bulletinMu.Lock()
	defer s.bulletinMu.Unlock()
	if s.cachedBulletin == nil || s.cachedBulletin.Period != rec.Period {
		s.cachedBulletin = llm.GenerateBulletin(r.Context(), s.LLM, rec, prev)
	}
	writeJSON(w, s.cachedBulletin)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write response", "error", err)
	}
}
