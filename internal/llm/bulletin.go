// Economic bulletin generation: turns the latest history record into prose.
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/indicators"
)

// Bulletin holds a generated bulletin issue.
type Bulletin struct {
	GeneratedAt time.Time `json:"generated_at"`
	Period      int       `json:"period"`
	Content     string    `json:"content"`
}

// PriceMove describes one good's price against its base price.
type PriceMove struct {
	Good  string
	Price float64
	Ratio float64 // current / base; >1 means inflated
}

const bulletinSystem = `You are the editor of the city's monthly economic bulletin. Write a short, plain-spoken report for residents: output, jobs, prices, interest rates, public finances, and what stands out. Keep it under 300 words. Do not invent numbers that are not in the data.`

// GenerateBulletin writes a bulletin for rec, comparing against prev when
// given. Without a client, or when the call fails, it falls back to a plain
// text summary.
func GenerateBulletin(ctx context.Context, client *Client, rec, prev *indicators.HistoryRecord) *Bulletin {
	out := &Bulletin{GeneratedAt: time.Now(), Period: rec.Period}
	if client.Enabled() {
		content, err := client.Complete(ctx, bulletinSystem, buildBulletinPrompt(rec, prev), 600)
		if err == nil {
			out.Content = content
			return out
		}
	}
	out.Content = fallbackBulletin(rec, prev)
	return out
}

// PriceMoves returns the goods whose prices moved furthest from base, largest
// first.
func PriceMoves(rec *indicators.HistoryRecord, n int) []PriceMove {
	var moves []PriceMove
	for _, g := range agents.Catalog {
		p, ok := rec.Prices[g.Key]
		if !ok || g.BasePrice <= 0 {
			continue
		}
		moves = append(moves, PriceMove{Good: g.Name, Price: p, Ratio: p / g.BasePrice})
	}
	sort.SliceStable(moves, func(i, j int) bool {
		return distance(moves[i].Ratio) > distance(moves[j].Ratio)
	})
	if len(moves) > n {
		moves = moves[:n]
	}
	return moves
}

func distance(ratio float64) float64 {
	if ratio < 1 {
		return 1 - ratio
	}
	return ratio - 1
}

func direction(ratio float64) string {
	switch {
	case ratio > 1.5:
		return "surging"
	case ratio > 1.2:
		return "rising"
	case ratio < 0.7:
		return "collapsed"
	case ratio < 0.9:
		return "falling"
	}
	return "steady"
}

func buildBulletinPrompt(rec, prev *indicators.HistoryRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write the bulletin for period %d (%s phase).\n\n", rec.Period, rec.Phase)
	fmt.Fprintf(&b, "OUTPUT: GDP %.0f (real %.0f). Consumption %.0f, investment %.0f, government %.0f.\n",
		rec.GDP, rec.RealGDP, rec.Consumption, rec.Investment, rec.GovernmentSpending)
	if prev != nil && prev.RealGDP > 0 {
		fmt.Fprintf(&b, "Real GDP change since last period: %+.1f%%.\n", (rec.RealGDP/prev.RealGDP-1)*100)
	}
	fmt.Fprintf(&b, "JOBS: %d of %d households employed (unemployment %.1f%%), vacancy fill rate %.0f%%.\n",
		rec.Employed, rec.Households, rec.Unemployment*100, rec.VacancyFillRate*100)
	fmt.Fprintf(&b, "PRICES: index %.1f, inflation %.2f%%, food share of spending %.0f%%.\n",
		rec.PriceIndex, rec.Inflation*100, rec.FoodShare*100)
	fmt.Fprintf(&b, "RATES: policy %.2f%%, deposits %.2f%%, loans %.2f%%, loan-to-deposit %.2f.\n",
		rec.PolicyRate*100, rec.DepositRate*100, rec.LoanRate*100, rec.LoanToDeposit)
	fmt.Fprintf(&b, "PUBLIC FINANCES: tax revenue %.0f, transfers %.0f.\n", rec.TaxRevenue, rec.Transfers)
	fmt.Fprintf(&b, "INEQUALITY: Gini %.3f.\n", rec.Gini)
	if rec.BankruptFirms > 0 {
		fmt.Fprintf(&b, "BUSINESS: %d of %d firms bankrupt.\n", rec.BankruptFirms, rec.Firms)
	}

	if moves := PriceMoves(rec, 4); len(moves) > 0 {
		b.WriteString("\nMARKET REPORT (notable prices):\n")
		for _, m := range moves {
			fmt.Fprintf(&b, "- %s: %.2f (%s, %.2fx base)\n", m.Good, m.Price, direction(m.Ratio), m.Ratio)
		}
	}
	return b.String()
}

func fallbackBulletin(rec, prev *indicators.HistoryRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CITY ECONOMIC BULLETIN\n")
	fmt.Fprintf(&b, "======================\n")
	fmt.Fprintf(&b, "Period %d (%s)\n\n", rec.Period, rec.Phase)

	fmt.Fprintf(&b, "OUTPUT\n")
	fmt.Fprintf(&b, "GDP stood at %.0f, %.0f in base-period prices.\n", rec.GDP, rec.RealGDP)
	if prev != nil && prev.RealGDP > 0 {
		fmt.Fprintf(&b, "Real output moved %+.1f%% on the previous period.\n", (rec.RealGDP/prev.RealGDP-1)*100)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "JOBS\n")
	fmt.Fprintf(&b, "%d of %d households are employed; unemployment is %.1f%%.\n\n",
		rec.Employed, rec.Households, rec.Unemployment*100)

	fmt.Fprintf(&b, "PRICES AND RATES\n")
	fmt.Fprintf(&b, "The price index reads %.1f (inflation %.2f%%). The policy rate is %.2f%%.\n\n",
		rec.PriceIndex, rec.Inflation*100, rec.PolicyRate*100)

	if moves := PriceMoves(rec, 4); len(moves) > 0 {
		fmt.Fprintf(&b, "MARKET REPORT\n")
		for _, m := range moves {
			fmt.Fprintf(&b, "- %s: %.2f (%.2fx base price)\n", m.Good, m.Price, m.Ratio)
		}
		b.WriteString("\n")
	}

	if rec.BankruptFirms > 0 {
		fmt.Fprintf(&b, "BUSINESS\n")
		fmt.Fprintf(&b, "%d firms have failed.\n", rec.BankruptFirms)
	}

	return b.String()
}
