// Package economy provides the goods market: listing/order matching,
// settlement transactions and rolling price and demand tracking.
package economy

import (
	"fmt"
	"math"

	"github.com/talgya/citysim/internal/agents"
)

// epsilon absorbs float residue when comparing quantities and budgets.
const epsilon = 1e-9

// Listing is a firm's offer to sell a quantity of one good at a unit price.
type Listing struct {
	Firm      agents.FirmID `json:"firm_id"`
	Good      agents.GoodID `json:"good"`
	UnitPrice float64       `json:"unit_price"`
	Quantity  float64       `json:"quantity"`
}

// Order is a household's request to buy a good within a budget.
type Order struct {
	Household agents.HouseholdID `json:"household_id"`
	Good      agents.GoodID      `json:"good"`
	Budget    float64            `json:"budget"`
	Quantity  float64            `json:"quantity"`

	// MaxPrice, when positive, is the highest unit price the buyer accepts.
	MaxPrice float64 `json:"max_price,omitempty"`
}

// Transaction is one settled fill between a listing and an order.
type Transaction struct {
	Buyer     agents.HouseholdID `json:"buyer_id"`
	Seller    agents.FirmID      `json:"seller_id"`
	Good      agents.GoodID      `json:"good"`
	Quantity  float64            `json:"quantity"`
	UnitPrice float64            `json:"unit_price"`

	// Cost is the cash paid, Quantity × UnitPrice clamped to the order's
	// remaining budget.
	Cost float64 `json:"cost"`

	// ListingIndex and OrderIndex point back into the Match inputs.
	ListingIndex int `json:"listing_index"`
	OrderIndex   int `json:"order_index"`
}

// Value is the cash moved by the transaction.
func (t Transaction) Value() float64 { return t.Cost }

// Validate checks a listing's shape.
func (l Listing) Validate() error {
	if !l.Good.Valid() {
		return fmt.Errorf("listing: unknown good %d", l.Good)
	}
	if l.UnitPrice <= 0 || math.IsNaN(l.UnitPrice) || math.IsInf(l.UnitPrice, 0) {
		return fmt.Errorf("listing: non-positive price %v", l.UnitPrice)
	}
	if l.Quantity < 0 || math.IsNaN(l.Quantity) || math.IsInf(l.Quantity, 0) {
		return fmt.Errorf("listing: invalid quantity %v", l.Quantity)
	}
	return nil
}

// Validate checks an order's shape.
func (o Order) Validate() error {
	if !o.Good.Valid() {
		return fmt.Errorf("order: unknown good %d", o.Good)
	}
	if o.Budget < 0 || math.IsNaN(o.Budget) || math.IsInf(o.Budget, 0) {
		return fmt.Errorf("order: invalid budget %v", o.Budget)
	}
	if o.Quantity < 0 || math.IsNaN(o.Quantity) || math.IsInf(o.Quantity, 0) {
		return fmt.Errorf("order: invalid quantity %v", o.Quantity)
	}
	if o.MaxPrice < 0 || math.IsNaN(o.MaxPrice) {
		return fmt.Errorf("order: invalid max price %v", o.MaxPrice)
	}
	return nil
}

// Side distinguishes rejected listings from rejected orders.
type Side string

const (
	SideListing Side = "listing"
	SideOrder   Side = "order"
)

// Rejection records an input dropped before matching.
type Rejection struct {
	Side  Side
	Index int
	Err   error
}

// MatchResult is the outcome of one goods-market pass.
type MatchResult struct {
	Transactions []Transaction

	// Per-good shortfall of wanted quantity and leftover listed quantity.
	UnmetDemand  agents.GoodVector
	UnsoldSupply agents.GoodVector

	// Matched quantity and value per good.
	Volume agents.GoodVector
	Value  agents.GoodVector

	// ListingFilled[i] is the quantity sold from listings[i];
	// OrderSpent[j] is the cash spent by orders[j].
	ListingFilled []float64
	OrderSpent    []float64

	Rejected []Rejection
}

// TotalValue returns the value of all transactions.
func (r *MatchResult) TotalValue() float64 { return r.Value.Sum() }
