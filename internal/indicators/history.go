package indicators

import (
	"fmt"
	"sync"

	"github.com/talgya/citysim/internal/agents"
)

// History is the append-only record series of a run. The first appended
// record fixes the base-period prices used as the deflator reference for
// the rest of the run. Safe for concurrent readers.
type History struct {
	mu      sync.RWMutex
	records []HistoryRecord
	base    agents.GoodVector
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds the next period's record. Periods must be consecutive.
func (h *History) Append(rec HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.records); n > 0 {
		if want := h.records[n-1].Period + 1; rec.Period != want {
			return fmt.Errorf("history: append period %d, want %d", rec.Period, want)
		}
	} else {
		h.base = rec.PriceVector()
	}
	h.records = append(h.records, rec)
	return nil
}

// Len returns the number of records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Latest returns a copy of the most recent record, or nil.
func (h *History) Latest() *HistoryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return nil
	}
	rec := h.records[len(h.records)-1]
	return &rec
}

// BasePrices returns the base-period prices.
func (h *History) BasePrices() agents.GoodVector {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.base
}

// Records returns a copy of all records.
func (h *History) Records() []HistoryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]HistoryRecord(nil), h.records...)
}

// Tail returns a copy of the last n records (all when n <= 0).
func (h *History) Tail(n int) []HistoryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n >= len(h.records) {
		return append([]HistoryRecord(nil), h.records...)
	}
	return append([]HistoryRecord(nil), h.records[len(h.records)-n:]...)
}

// Series extracts one scalar per record, oldest first.
func (h *History) Series(field func(*HistoryRecord) float64) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]float64, len(h.records))
	for i := range h.records {
		out[i] = field(&h.records[i])
	}
	return out
}

// RestoreHistory rebuilds a history from stored records (oldest first).
func RestoreHistory(records []HistoryRecord) (*History, error) {
	h := NewHistory()
	for _, r := range records {
		if err := h.Append(r); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Field accessors for Series.
func GDP(r *HistoryRecord) float64          { return r.GDP }
func RealGDP(r *HistoryRecord) float64      { return r.RealGDP }
func Unemployment(r *HistoryRecord) float64 { return r.Unemployment }
func InflationOf(r *HistoryRecord) float64  { return r.Inflation }
