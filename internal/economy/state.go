package economy

import (
	"fmt"

	"github.com/talgya/citysim/internal/agents"
)

// State is the serializable rolling state of a Market.
type State struct {
	Window            int                  `json:"window"`
	PriceWindows      map[string][]float64 `json:"price_windows"`
	DemandWindows     map[string][]float64 `json:"demand_windows"`
	ReferencePrices   map[string]float64   `json:"reference_prices"`
	TotalListings     int                  `json:"total_listings"`
	TotalOrders       int                  `json:"total_orders"`
	TotalTransactions int                  `json:"total_transactions"`
	TotalVolume       float64              `json:"total_volume"`
}

// Snapshot captures the market's rolling state.
func (m *Market) Snapshot() State {
	s := State{
		Window:            m.window,
		PriceWindows:      make(map[string][]float64, agents.NumGoods),
		DemandWindows:     make(map[string][]float64, agents.NumGoods),
		ReferencePrices:   m.ref.ByKey(),
		TotalListings:     m.TotalListings,
		TotalOrders:       m.TotalOrders,
		TotalTransactions: m.TotalTransactions,
		TotalVolume:       m.TotalVolume,
	}
	for g := 0; g < agents.NumGoods; g++ {
		key := agents.Catalog[g].Key
		s.PriceWindows[key] = append([]float64(nil), m.prices[g]...)
		s.DemandWindows[key] = append([]float64(nil), m.demands[g]...)
	}
	return s
}

// RestoreMarket rebuilds a Market from a snapshot.
func RestoreMarket(s State) (*Market, error) {
	m := NewMarket(s.Window)
	m.TotalListings = s.TotalListings
	m.TotalOrders = s.TotalOrders
	m.TotalTransactions = s.TotalTransactions
	m.TotalVolume = s.TotalVolume

	for key, w := range s.PriceWindows {
		g, ok := agents.LookupGood(key)
		if !ok {
			return nil, fmt.Errorf("restore goods market: unknown good %q", key)
		}
		m.prices[g] = trimWindow(w, m.window)
	}
	for key, w := range s.DemandWindows {
		g, ok := agents.LookupGood(key)
		if !ok {
			return nil, fmt.Errorf("restore goods market: unknown good %q", key)
		}
		m.demands[g] = trimWindow(w, m.window)
	}
	for key, p := range s.ReferencePrices {
		if g, ok := agents.LookupGood(key); ok && p > 0 {
			m.ref[g] = p
		}
	}
	return m, nil
}

func trimWindow(w []float64, size int) []float64 {
	if len(w) > size {
		w = w[len(w)-size:]
	}
	return append([]float64(nil), w...)
}
