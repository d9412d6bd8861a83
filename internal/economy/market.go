package economy

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/citysim/internal/agents"
)

// DefaultWindow is the number of transactions (for prices) and periods (for
// demand) kept in the rolling windows.
const DefaultWindow = 10

// Market clears goods each period and keeps rolling price/demand state.
type Market struct {
	window int

	prices  [agents.NumGoods][]float64 // last transaction unit prices
	demands [agents.NumGoods][]float64 // matched quantity per period
	ref     agents.GoodVector          // fallback price per good

	// Lifetime counters
	TotalListings     int     `json:"total_listings"`
	TotalOrders       int     `json:"total_orders"`
	TotalTransactions int     `json:"total_transactions"`
	TotalVolume       float64 `json:"total_volume"`
}

// NewMarket creates a goods market with the given window length. Prices fall
// back to the catalog base prices until a good first trades.
func NewMarket(window int) *Market {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Market{window: window, ref: agents.BasePrices()}
}

// Match fills orders against listings. Listings are grouped by good and
// sorted ascending by unit price (stable, so equal prices keep input order).
// Orders are processed in arrival order; each takes from the cheapest
// remaining listing, partially if needed, bounded by the listing's remaining
// quantity and the order's remaining quantity and budget.
//
// Match records the period's matched quantity per good in the demand window
// and appends every transaction price to the price window.
func (m *Market) Match(listings []Listing, orders []Order) *MatchResult {
	res := &MatchResult{
		ListingFilled: make([]float64, len(listings)),
		OrderSpent:    make([]float64, len(orders)),
	}

	var byGoodListings [agents.NumGoods][]int
	var byGoodOrders [agents.NumGoods][]int

	for i, l := range listings {
		if err := l.Validate(); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Side: SideListing, Index: i, Err: err})
			continue
		}
		byGoodListings[l.Good] = append(byGoodListings[l.Good], i)
	}
	for j, o := range orders {
		if err := o.Validate(); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Side: SideOrder, Index: j, Err: err})
			continue
		}
		byGoodOrders[o.Good] = append(byGoodOrders[o.Good], j)
	}

	for g := 0; g < agents.NumGoods; g++ {
		idx := byGoodListings[g]
		sort.SliceStable(idx, func(a, b int) bool {
			return listings[idx[a]].UnitPrice < listings[idx[b]].UnitPrice
		})
		m.matchGood(agents.GoodID(g), listings, idx, orders, byGoodOrders[g], res)
	}

	m.TotalListings += len(listings)
	m.TotalOrders += len(orders)
	m.TotalTransactions += len(res.Transactions)
	m.TotalVolume += res.TotalValue()

	for g := 0; g < agents.NumGoods; g++ {
		m.demands[g] = pushWindow(m.demands[g], res.Volume[g], m.window)
	}

	slog.Debug("goods market matched",
		"listings", len(listings),
		"orders", len(orders),
		"transactions", len(res.Transactions),
		"rejected", len(res.Rejected),
	)
	return res
}

func (m *Market) matchGood(good agents.GoodID, listings []Listing, li []int, orders []Order, oi []int, res *MatchResult) {
	remaining := make([]float64, len(li))
	for k, i := range li {
		remaining[k] = listings[i].Quantity
	}

	for _, j := range oi {
		o := orders[j]
		wanted := o.Quantity
		budget := o.Budget

		for k, i := range li {
			if wanted <= epsilon || budget <= epsilon {
				break
			}
			if remaining[k] <= epsilon {
				continue
			}
			price := listings[i].UnitPrice
			if o.MaxPrice > 0 && price > o.MaxPrice {
				break // listings are ascending; nothing cheaper remains
			}
			affordable := budget / price
			qty := min(remaining[k], wanted, affordable)
			if qty <= epsilon {
				break // cheaper listings are exhausted and this one is unaffordable
			}

			cost := qty * price
			if qty == affordable || cost > budget {
				cost = budget
			}
			remaining[k] -= qty
			wanted -= qty
			budget -= cost

			res.ListingFilled[i] += qty
			res.OrderSpent[j] += cost
			res.Volume[good] += qty
			res.Value[good] += cost
			res.Transactions = append(res.Transactions, Transaction{
				Buyer:        o.Household,
				Seller:       listings[i].Firm,
				Good:         good,
				Quantity:     qty,
				UnitPrice:    price,
				Cost:         cost,
				ListingIndex: i,
				OrderIndex:   j,
			})
			m.prices[good] = pushWindow(m.prices[good], price, m.window)
		}

		if wanted > epsilon {
			res.UnmetDemand[good] += wanted
		}
	}

	for k := range li {
		if remaining[k] > epsilon {
			res.UnsoldSupply[good] += remaining[k]
		}
	}
}

// Prices returns, per good, the mean unit price over the rolling transaction
// window. Goods that never traded report their reference price.
func (m *Market) Prices() agents.GoodVector {
	var out agents.GoodVector
	for g := 0; g < agents.NumGoods; g++ {
		if w := m.prices[g]; len(w) > 0 {
			out[g] = floats.Sum(w) / float64(len(w))
		} else {
			out[g] = m.ref[g]
		}
	}
	return out
}

// Demands returns, per good, the mean matched quantity per period over the
// rolling period window.
func (m *Market) Demands() agents.GoodVector {
	var out agents.GoodVector
	for g := 0; g < agents.NumGoods; g++ {
		if w := m.demands[g]; len(w) > 0 {
			out[g] = floats.Sum(w) / float64(len(w))
		}
	}
	return out
}

// MarketPrices returns Prices keyed by good key.
func (m *Market) MarketPrices() map[string]float64 { return m.Prices().ByKey() }

// MarketDemands returns Demands keyed by good key.
func (m *Market) MarketDemands() map[string]float64 { return m.Demands().ByKey() }

func pushWindow(w []float64, v float64, size int) []float64 {
	w = append(w, v)
	if len(w) > size {
		// Trim oldest entries, ring-buffer style.
		w = append(w[:0], w[len(w)-size:]...)
	}
	return w
}
