// Package config loads the simulation configuration from YAML. Every field
// has a default, so a file only needs to name what it changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/citysim/internal/finance"
	"github.com/talgya/citysim/internal/policy"
	"github.com/talgya/citysim/internal/simerr"
)

// Config is the full run configuration.
type Config struct {
	Simulation Simulation `yaml:"simulation" json:"simulation"`
	Households Households `yaml:"households" json:"households"`
	Firms      Firms      `yaml:"firms" json:"firms"`
	Labor      Labor      `yaml:"labor" json:"labor"`
	Goods      Goods      `yaml:"goods" json:"goods"`
	Finance    Finance    `yaml:"finance" json:"finance"`
	Policy     Policy     `yaml:"policy" json:"policy"`
	Tax        Tax        `yaml:"tax" json:"tax"`
	Welfare    Welfare    `yaml:"welfare" json:"welfare"`
	LLM        LLM        `yaml:"llm" json:"llm"`
}

// Simulation controls the run length, phases and randomness.
type Simulation struct {
	Periods         int      `yaml:"periods" json:"periods"`
	MoveInPeriods   int      `yaml:"move_in_periods" json:"move_in_periods"`
	Seed            int64    `yaml:"seed" json:"seed"`
	ShockAmplitude  float64  `yaml:"shock_amplitude" json:"shock_amplitude"`
	Depreciation    float64  `yaml:"depreciation" json:"depreciation"`
	ProviderTimeout Duration `yaml:"provider_timeout" json:"provider_timeout"`
}

// Households controls population size and default household behavior.
type Households struct {
	Initial          int     `yaml:"initial" json:"initial"`
	Max              int     `yaml:"max" json:"max"`
	InflowPerPeriod  int     `yaml:"inflow_per_period" json:"inflow_per_period"`
	ConsumptionShare float64 `yaml:"consumption_share" json:"consumption_share"`
	SavingsThreshold float64 `yaml:"savings_threshold" json:"savings_threshold"`
	SavingsShare     float64 `yaml:"savings_share" json:"savings_share"`
}

// Firms controls the firm population.
type Firms struct {
	Count             int `yaml:"count" json:"count"`
	BankruptcyPeriods int `yaml:"bankruptcy_periods" json:"bankruptcy_periods"`
}

// Labor controls the labor market.
type Labor struct {
	MatchProbability float64 `yaml:"match_probability" json:"match_probability"`
	ScoreThreshold   float64 `yaml:"score_threshold" json:"score_threshold"`
	MinimumWage      float64 `yaml:"minimum_wage" json:"minimum_wage"`
}

// Goods controls the goods market.
type Goods struct {
	Window int `yaml:"window" json:"window"`
}

// Finance controls the financial market and loan approval.
type Finance struct {
	InitialPolicyRate float64 `yaml:"initial_policy_rate" json:"initial_policy_rate"`
	DepositSpread     float64 `yaml:"deposit_spread" json:"deposit_spread"`
	LoanSpread        float64 `yaml:"loan_spread" json:"loan_spread"`
	PeriodsPerYear    int     `yaml:"periods_per_year" json:"periods_per_year"`

	// Approval is "always" or "limits".
	Approval         string  `yaml:"approval" json:"approval"`
	MaxLoan          float64 `yaml:"max_loan" json:"max_loan"`
	MaxLoanToDeposit float64 `yaml:"max_loan_to_deposit" json:"max_loan_to_deposit"`
}

// Policy controls the central bank.
type Policy struct {
	Taylor          policy.TaylorRule `yaml:"taylor" json:"taylor"`
	PotentialWindow int               `yaml:"potential_window" json:"potential_window"`
}

// Tax holds the annual income tax schedule.
type Tax struct {
	Brackets []policy.Bracket `yaml:"brackets" json:"brackets"`
}

// Welfare controls transfers and public spending.
type Welfare struct {
	UBI                 float64 `yaml:"ubi" json:"ubi"`
	BenefitRate         float64 `yaml:"benefit_rate" json:"benefit_rate"`
	MaxBenefitPeriods   int     `yaml:"max_benefit_periods" json:"max_benefit_periods"`
	PublicSpendingShare float64 `yaml:"public_spending_share" json:"public_spending_share"`
}

// LLM controls the language-model decision provider.
type LLM struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	Model          string   `yaml:"model" json:"model"`
	CallsPerMinute int      `yaml:"calls_per_minute" json:"calls_per_minute"`
	CacheSize      int      `yaml:"cache_size" json:"cache_size"`
	Timeout        Duration `yaml:"timeout" json:"timeout"`
}

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Simulation: Simulation{
			Periods:         180,
			MoveInPeriods:   36,
			Seed:            42,
			ShockAmplitude:  0.02,
			Depreciation:    0.005,
			ProviderTimeout: Duration(30 * time.Second),
		},
		Households: Households{
			Initial:          10,
			Max:              200,
			InflowPerPeriod:  5,
			ConsumptionShare: 0.10,
			SavingsThreshold: 20000,
			SavingsShare:     0.5,
		},
		Firms: Firms{
			Count:             12,
			BankruptcyPeriods: 3,
		},
		Labor: Labor{
			MatchProbability: 0.7,
			ScoreThreshold:   0.4,
			MinimumWage:      1000,
		},
		Goods: Goods{Window: 10},
		Finance: Finance{
			InitialPolicyRate: finance.DefaultPolicyRate,
			DepositSpread:     finance.DefaultDepositSpread,
			LoanSpread:        finance.DefaultLoanSpread,
			PeriodsPerYear:    finance.DefaultPeriodsPerYear,
			Approval:          "always",
			MaxLoan:           1e6,
			MaxLoanToDeposit:  0.9,
		},
		Policy: Policy{
			Taylor:          policy.DefaultTaylorRule(),
			PotentialWindow: 12,
		},
		Tax: Tax{Brackets: append([]policy.Bracket(nil), policy.DefaultBrackets...)},
		Welfare: Welfare{
			UBI:                 500,
			BenefitRate:         0.5,
			MaxBenefitPeriods:   6,
			PublicSpendingShare: 0.3,
		},
		LLM: LLM{
			Model:          "claude-haiku-4-5-20251001",
			CallsPerMinute: 30,
			CacheSize:      512,
			Timeout:        Duration(20 * time.Second),
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, simerr.Configuration("parse config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate returns a Configuration error for the first invalid setting.
func (c Config) Validate() error {
	s := c.Simulation
	if s.Periods < 0 {
		return simerr.Configuration("simulation.periods %d is negative", s.Periods)
	}
	if s.MoveInPeriods < 0 {
		return simerr.Configuration("simulation.move_in_periods %d is negative", s.MoveInPeriods)
	}
	if bad(s.ShockAmplitude) || s.ShockAmplitude < 0 || s.ShockAmplitude >= 1 {
		return simerr.Configuration("simulation.shock_amplitude %v outside [0,1)", s.ShockAmplitude)
	}
	if bad(s.Depreciation) || s.Depreciation <= 0 || s.Depreciation > 1 {
		return simerr.Configuration("simulation.depreciation %v outside (0,1]", s.Depreciation)
	}
	if s.ProviderTimeout < 0 {
		return simerr.Configuration("simulation.provider_timeout is negative")
	}

	h := c.Households
	if h.Initial < 0 || h.Max < 0 || h.InflowPerPeriod < 0 {
		return simerr.Configuration("households: negative population bound")
	}
	if h.Initial > h.Max {
		return simerr.Configuration("households.initial %d exceeds max %d", h.Initial, h.Max)
	}
	if !unit(h.ConsumptionShare) {
		return simerr.Configuration("households.consumption_share %v outside [0,1]", h.ConsumptionShare)
	}
	if !unit(h.SavingsShare) {
		return simerr.Configuration("households.savings_share %v outside [0,1]", h.SavingsShare)
	}
	if bad(h.SavingsThreshold) || h.SavingsThreshold < 0 {
		return simerr.Configuration("households.savings_threshold %v is negative", h.SavingsThreshold)
	}

	if c.Firms.Count <= 0 {
		return simerr.Configuration("firms.count %d must be positive", c.Firms.Count)
	}
	if c.Firms.BankruptcyPeriods < 0 {
		return simerr.Configuration("firms.bankruptcy_periods %d is negative", c.Firms.BankruptcyPeriods)
	}

	l := c.Labor
	if !unit(l.MatchProbability) {
		return simerr.Configuration("labor.match_probability %v outside [0,1]", l.MatchProbability)
	}
	if !unit(l.ScoreThreshold) {
		return simerr.Configuration("labor.score_threshold %v outside [0,1]", l.ScoreThreshold)
	}
	if bad(l.MinimumWage) || l.MinimumWage < 0 {
		return simerr.Configuration("labor.minimum_wage %v is negative", l.MinimumWage)
	}

	if c.Goods.Window <= 0 {
		return simerr.Configuration("goods.window %d must be positive", c.Goods.Window)
	}

	f := c.Finance
	if bad(f.InitialPolicyRate) || f.InitialPolicyRate < 0 {
		return simerr.Configuration("finance.initial_policy_rate %v is negative", f.InitialPolicyRate)
	}
	if bad(f.DepositSpread) || f.DepositSpread > 0 {
		return simerr.Configuration("finance.deposit_spread %v must not be positive", f.DepositSpread)
	}
	if bad(f.LoanSpread) || f.LoanSpread < 0 {
		return simerr.Configuration("finance.loan_spread %v must not be negative", f.LoanSpread)
	}
	if f.PeriodsPerYear <= 0 {
		return simerr.Configuration("finance.periods_per_year %d must be positive", f.PeriodsPerYear)
	}
	switch f.Approval {
	case "always", "":
	case "limits":
		if f.MaxLoan < 0 || f.MaxLoanToDeposit < 0 {
			return simerr.Configuration("finance: negative loan limit")
		}
	default:
		return simerr.Configuration("finance.approval %q must be always or limits", f.Approval)
	}

	if err := c.Policy.Taylor.Validate(); err != nil {
		return err
	}
	if c.Policy.PotentialWindow <= 0 {
		return simerr.Configuration("policy.potential_window %d must be positive", c.Policy.PotentialWindow)
	}

	if _, err := policy.NewTaxSchedule(c.Tax.Brackets); err != nil {
		return err
	}

	w := c.Welfare
	if bad(w.UBI) || w.UBI < 0 {
		return simerr.Configuration("welfare.ubi %v is negative", w.UBI)
	}
	if !unit(w.BenefitRate) {
		return simerr.Configuration("welfare.benefit_rate %v outside [0,1]", w.BenefitRate)
	}
	if w.MaxBenefitPeriods < 0 {
		return simerr.Configuration("welfare.max_benefit_periods %d is negative", w.MaxBenefitPeriods)
	}
	if !unit(w.PublicSpendingShare) {
		return simerr.Configuration("welfare.public_spending_share %v outside [0,1]", w.PublicSpendingShare)
	}

	if c.LLM.Enabled && c.LLM.Model == "" {
		return simerr.Configuration("llm.model is required when llm is enabled")
	}
	if c.LLM.CallsPerMinute < 0 || c.LLM.CacheSize < 0 {
		return simerr.Configuration("llm: negative limit")
	}
	return nil
}

// ApprovalPolicy builds the configured loan approval policy.
func (f Finance) ApprovalPolicy() finance.ApprovalPolicy {
	if f.Approval == "limits" {
		return finance.LimitPolicy{MaxLoan: f.MaxLoan, MaxLoanToDeposit: f.MaxLoanToDeposit}
	}
	return finance.AlwaysApprove{}
}

func bad(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

func unit(v float64) bool { return !bad(v) && v >= 0 && v <= 1 }
