package engine

import (
	"math"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/economy"
	"github.com/talgya/citysim/internal/intent"
	"github.com/talgya/citysim/internal/simerr"
)

const stageTrading = intent.StageProductionTrading

// produceAndTrade runs Production & Trading: wages, production, then one
// goods-market pass settled against agent balances.
func (s *Simulation) produceAndTrade(p *periodRun, batch *intent.Batch) {
	s.payWages(p)
	s.produce(p, batch)

	listings := s.buildListings(p, batch)
	orders := s.buildOrders(p, batch, listings)

	res := s.Goods.Match(listings, orders)
	for _, rej := range res.Rejected {
		p.skip(rejectionError(rej, listings, orders))
	}
	s.settle(p, res)

	p.unmet = res.UnmetDemand
	p.unsold = res.UnsoldSupply
	p.transactions = len(res.Transactions)
}

// buildListings offers every firm's positive inventory at its posted price.
// Bankrupt firms still liquidate stock.
func (s *Simulation) buildListings(p *periodRun, batch *intent.Batch) []economy.Listing {
	var listings []economy.Listing
	for _, f := range s.Firms {
		if batch.Firm(f.ID).Skipped(stageTrading) != nil {
			continue
		}
		for g := range agents.NumGoods {
			qty := f.Inventory[g]
			if qty <= 0 {
				continue
			}
			listings = append(listings, economy.Listing{
				Firm:      f.ID,
				Good:      agents.GoodID(g),
				UnitPrice: f.Prices[g],
				Quantity:  qty,
			})
		}
	}
	return listings
}

// buildOrders turns each household's consumption budget into orders. With no
// explicit budget a household spends the configured share of its cash on the
// necessity good. Budgets beyond available cash are scaled down. The quantity
// wanted is the budget over the cheapest listed price, or over the rolling
// market price when nothing is listed.
func (s *Simulation) buildOrders(p *periodRun, batch *intent.Batch, listings []economy.Listing) []economy.Order {
	prices := cheapestPrices(listings, s.Goods.Prices())
	var orders []economy.Order
	for _, h := range s.Households {
		d := batch.Household(h.ID)
		if d.Skipped(stageTrading) != nil {
			continue
		}
		cash := math.Max(0, h.Cash)

		var budgets agents.GoodVector
		if d.Consumption != nil {
			budgets = *d.Consumption
		} else {
			budgets[agents.NecessityGood] = s.cfg.Households.ConsumptionShare * cash
		}

		if total := budgets.Sum(); total > cash {
			scale := 0.0
			if total > 0 {
				scale = cash / total
			}
			for g := range budgets {
				budgets[g] *= scale
			}
			p.skipAt(stageTrading, simerr.InsufficientFunds(intent.KindHousehold, uint64(h.ID),
				"consumption budget %.2f clamped to cash %.2f", total, cash))
		}

		for g, b := range budgets {
			if b <= 0 || prices[g] <= 0 {
				continue
			}
			o := economy.Order{
				Household: h.ID,
				Good:      agents.GoodID(g),
				Budget:    b,
				Quantity:  b / prices[g],
			}
			if d.MaxPrices != nil {
				o.MaxPrice = d.MaxPrices[g]
			}
			orders = append(orders, o)
		}
	}
	return orders
}

// cheapestPrices returns the lowest listed price per good, falling back to
// fallback for goods nobody lists.
func cheapestPrices(listings []economy.Listing, fallback agents.GoodVector) agents.GoodVector {
	var listed [agents.NumGoods]bool
	out := fallback
	for _, l := range listings {
		if !l.Good.Valid() || l.UnitPrice <= 0 {
			continue
		}
		if !listed[l.Good] || l.UnitPrice < out[l.Good] {
			out[l.Good] = l.UnitPrice
			listed[l.Good] = true
		}
	}
	return out
}

// settle applies transactions to buyer and seller balances. Spending totals
// come only from settled transactions.
func (s *Simulation) settle(p *periodRun, res *economy.MatchResult) {
	for _, tx := range res.Transactions {
		h := s.Household(tx.Buyer)
		f := s.Firm(tx.Seller)
		if h == nil || f == nil {
			p.skipAt(stageTrading, simerr.MarketState(intent.KindHousehold, uint64(tx.Buyer),
				"transaction with unknown party (firm %d)", tx.Seller))
			continue
		}
		v := tx.Cost

		h.Cash -= v
		h.Period.TotalSpending += v
		h.TotalSpending += v
		if tx.Good.IsFood() {
			h.Period.FoodSpending += v
			h.FoodSpending += v
		}

		f.Cash += v
		f.Inventory[tx.Good] = math.Max(0, f.Inventory[tx.Good]-tx.Quantity)
		f.Sales += tx.Quantity
		f.Revenue += v

		p.consumption += v
	}
}

func rejectionError(rej economy.Rejection, listings []economy.Listing, orders []economy.Order) error {
	switch rej.Side {
	case economy.SideListing:
		return simerr.MarketState(intent.KindFirm, uint64(listings[rej.Index].Firm), "%v", rej.Err).
			WithStage(string(stageTrading))
	default:
		return simerr.MarketState(intent.KindHousehold, uint64(orders[rej.Index].Household), "%v", rej.Err).
			WithStage(string(stageTrading))
	}
}
