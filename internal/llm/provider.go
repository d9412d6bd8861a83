package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/intent"
)

const (
	defaultCacheSize = 128
	defaultMaxTokens = 1500
)

// FirmPlan is the model's answer for one firm. Nil fields keep the
// heuristic's value.
type FirmPlan struct {
	ID           uint64   `json:"id"`
	Price        *float64 `json:"price"`
	Vacancies    *int     `json:"vacancies"`
	OfferedWage  *float64 `json:"offered_wage"`
	TargetOutput *float64 `json:"target_output"`
	Investment   *float64 `json:"investment"`
	Reasoning    string   `json:"reasoning"`
}

// Provider asks the model for firm strategies and takes every other decision
// from the heuristic. A firm the model omits, or a field it answers badly,
// keeps the heuristic intent.
type Provider struct {
	client    *Client
	fallback  *intent.Heuristic
	cache     *lru.Cache
	MaxTokens int
}

// NewProvider creates an LLM provider. Responses are cached by prompt.
func NewProvider(client *Client, fallback *intent.Heuristic, cacheSize int) (*Provider, error) {
	if fallback == nil {
		return nil, fmt.Errorf("llm provider: fallback heuristic is required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("llm cache: %w", err)
	}
	return &Provider{
		client:    client,
		fallback:  fallback,
		cache:     cache,
		MaxTokens: defaultMaxTokens,
	}, nil
}

// Decide implements intent.Provider.
func (p *Provider) Decide(ctx context.Context, obs *intent.Observation) ([]intent.Raw, error) {
	raws, err := p.fallback.Decide(ctx, obs)
	if err != nil {
		return nil, err
	}
	if !p.client.Enabled() {
		return raws, nil
	}

	text, err := p.complete(ctx, buildFirmPrompt(obs))
	if err != nil {
		slog.Warn("llm plans unavailable, using heuristic", "period", obs.Period, "error", err)
		return raws, nil
	}
	plans, err := parseFirmPlans(text)
	if err != nil {
		slog.Warn("llm plans unreadable, using heuristic", "period", obs.Period, "error", err)
		return raws, nil
	}

	applied := mergePlans(raws, plans, obs)
	slog.Info("llm plans applied", "period", obs.Period, "firms", applied, "answered", len(plans))
	return raws, nil
}

func (p *Provider) complete(ctx context.Context, prompt string) (string, error) {
	if v, ok := p.cache.Get(prompt); ok {
		return v.(string), nil
	}
	text, err := p.client.Complete(ctx, firmSystemPrompt, prompt, p.MaxTokens)
	if err != nil {
		return "", err
	}
	p.cache.Add(prompt, text)
	return text, nil
}

const firmSystemPrompt = `You run the firms of a small city economy. Each period you set every firm's plan for the next period.

Respond ONLY with a JSON array. Each element has:
- "id": the firm id
- "price": unit price for the firm's good (positive)
- "vacancies": number of open positions (0 or more)
- "offered_wage": monthly wage offered to new hires (at least the minimum wage)
- "target_output": optional production cap (positive)
- "investment": optional capital spending this period (0 or more)
- "reasoning": one short sentence

Raise prices when demand goes unmet and stock is low, cut them when goods go unsold.
Hire when demand outruns output and cash covers the payroll. Avoid running cash negative.`

func buildFirmPrompt(obs *intent.Observation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Period %d (%s).\n", obs.Period, obs.Phase)
	fmt.Fprintf(&b, "Unemployment %.1f%%, inflation %.2f%%, policy rate %.2f%%, loan rate %.2f%%, minimum wage %.0f.\n\n",
		obs.Unemployment*100, obs.Inflation*100, obs.PolicyRate*100, obs.LoanRate*100, obs.MinimumWage)

	b.WriteString("MARKETS (good: price, demand, unmet, unsold):\n")
	for g := range agents.NumGoods {
		fmt.Fprintf(&b, "- %s: %.2f, %.1f, %.1f, %.1f\n",
			agents.GoodID(g).Key(), obs.Prices[g], obs.Demands[g], obs.UnmetDemand[g], obs.UnsoldSupply[g])
	}
	b.WriteString("\n")

	b.WriteString("FIRMS (id, good, cash, debt, inventory, price, employees, vacancies, wage, output, sales):\n")
	for _, f := range obs.Firms {
		if f.Bankrupt {
			continue
		}
		fmt.Fprintf(&b, "- %d, %s, %.0f, %.0f, %.1f, %.2f, %d, %d, %.0f, %.1f, %.1f\n",
			f.ID, f.Good.Key(), f.Cash, f.Debt, f.Inventory, f.Price,
			f.Employees, f.Vacancies, f.OfferedWage, f.Output, f.Sales)
	}

	b.WriteString("\nGive the plan for every firm listed. Respond with the JSON array only.")
	return b.String()
}

func parseFirmPlans(response string) ([]FirmPlan, error) {
	// The model might wrap the array in prose.
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var plans []FirmPlan
	if err := json.Unmarshal([]byte(response[start:end+1]), &plans); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	return plans, nil
}

// mergePlans overlays plans onto the heuristic firm intents in raws and
// returns how many firms took at least one field from the model.
func mergePlans(raws []intent.Raw, plans []FirmPlan, obs *intent.Observation) int {
	firms := make(map[uint64]*intent.FirmIntent)
	for i := range raws {
		if raws[i].Kind == intent.KindFirm && raws[i].Firm != nil {
			firms[raws[i].ID] = raws[i].Firm
		}
	}
	goods := make(map[uint64]agents.GoodID, len(obs.Firms))
	for _, f := range obs.Firms {
		goods[uint64(f.ID)] = f.Good
	}

	applied := 0
	for _, plan := range plans {
		in, ok := firms[plan.ID]
		if !ok {
			continue
		}
		used := false
		if usable(plan.Price) && *plan.Price > 0 {
			if in.Prices == nil {
				in.Prices = make(map[string]float64, 1)
			}
			in.Prices[goods[plan.ID].Key()] = *plan.Price
			used = true
		}
		if plan.Vacancies != nil && *plan.Vacancies >= 0 {
			in.Vacancies = plan.Vacancies
			used = true
		}
		if usable(plan.OfferedWage) && *plan.OfferedWage >= obs.MinimumWage {
			in.OfferedWage = plan.OfferedWage
			used = true
		}
		if usable(plan.TargetOutput) && *plan.TargetOutput > 0 {
			in.TargetOutput = plan.TargetOutput
			used = true
		}
		if usable(plan.Investment) && *plan.Investment >= 0 {
			in.Investment = plan.Investment
			used = true
		}
		if used {
			applied++
			if plan.Reasoning != "" {
				slog.Debug("llm plan", "firm", plan.ID, "reasoning", plan.Reasoning)
			}
		}
	}
	return applied
}

func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
