package indicators

import (
	"encoding/json"
	"fmt"

	"github.com/talgya/citysim/internal/agents"
)

// SkipRecord notes an agent skipped in a stage after a recoverable error.
type SkipRecord struct {
	Stage     string `json:"stage"`
	AgentKind string `json:"agent_kind"`
	AgentID   uint64 `json:"agent_id"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// HistoryRecord is the canonical per-period result. Every field is measured
// from the period's settled state.
type HistoryRecord struct {
	Period int    `json:"period"`
	Phase  string `json:"phase"`

	// Headline indicators
	GDP          float64 `json:"gdp"`
	RealGDP      float64 `json:"real_gdp"`
	Unemployment float64 `json:"unemployment_rate"`
	PriceIndex   float64 `json:"price_index"`
	Inflation    float64 `json:"inflation"`
	Gini         float64 `json:"gini"`

	// GDP components
	Consumption        float64 `json:"consumption"`
	Investment         float64 `json:"investment"`
	GovernmentSpending float64 `json:"government_spending"`

	// Fiscal
	TaxRevenue float64 `json:"tax_revenue"`
	Transfers  float64 `json:"transfers"`

	// Monetary
	PolicyRate    float64 `json:"policy_rate"`
	DepositRate   float64 `json:"deposit_rate"`
	LoanRate      float64 `json:"loan_rate"`
	LoanToDeposit float64 `json:"loan_to_deposit"`

	// Population and labor
	Households      int     `json:"households"`
	Employed        int     `json:"employed"`
	Firms           int     `json:"firms"`
	BankruptFirms   int     `json:"bankrupt_firms"`
	VacancyFillRate float64 `json:"vacancy_fill_rate"`

	// Food share of spending, from settled transactions.
	FoodShare float64 `json:"food_share"`

	// Per-good arrays, keyed by good key.
	Prices       map[string]float64 `json:"prices"`
	Demands      map[string]float64 `json:"demands"`
	UnmetDemand  map[string]float64 `json:"unmet_demand"`
	UnsoldSupply map[string]float64 `json:"unsold_supply"`

	Skipped []SkipRecord `json:"skipped,omitempty"`
}

// PriceVector returns Prices as a GoodVector.
func (r *HistoryRecord) PriceVector() agents.GoodVector {
	return vectorFromKeys(r.Prices)
}

// Marshal encodes the record as JSON.
func (r *HistoryRecord) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal history record %d: %w", r.Period, err)
	}
	return data, nil
}

// UnmarshalRecord decodes a JSON record.
func UnmarshalRecord(data []byte) (HistoryRecord, error) {
	var r HistoryRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("unmarshal history record: %w", err)
	}
	return r, nil
}

func vectorFromKeys(m map[string]float64) agents.GoodVector {
	var v agents.GoodVector
	for k, x := range m {
		if g, ok := agents.LookupGood(k); ok {
			v[g] = x
		}
	}
	return v
}
