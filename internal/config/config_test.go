package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/citysim/internal/finance"
	"github.com/talgya/citysim/internal/simerr"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.8, cfg.Policy.Taylor.Smoothing)
	assert.Equal(t, 0.7, cfg.Labor.MatchProbability)
	assert.Equal(t, 3, cfg.Firms.BankruptcyPeriods)
}

func TestDecode_OverlaysDefaults(t *testing.T) {
	src := `
simulation:
  seed: 7
  provider_timeout: 5s
labor:
  match_probability: 1.0
tax:
  brackets:
    - {threshold: 0, rate: 0}
    - {threshold: 30000, rate: 0.25}
`
	cfg, err := Decode(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Simulation.Seed)
	assert.Equal(t, 5*time.Second, cfg.Simulation.ProviderTimeout.D())
	assert.Equal(t, 1.0, cfg.Labor.MatchProbability)
	assert.Equal(t, 0.4, cfg.Labor.ScoreThreshold, "untouched fields keep defaults")
	assert.Len(t, cfg.Tax.Brackets, 2)
	assert.Equal(t, 180, cfg.Simulation.Periods)
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("labour:\n  match_probability: 0.5\n"))
	assert.True(t, simerr.Is(err, simerr.KindConfiguration))
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"probability", func(c *Config) { c.Labor.MatchProbability = 1.5 }},
		{"threshold", func(c *Config) { c.Labor.ScoreThreshold = -0.1 }},
		{"deposit spread", func(c *Config) { c.Finance.DepositSpread = 0.01 }},
		{"loan spread", func(c *Config) { c.Finance.LoanSpread = -0.01 }},
		{"approval", func(c *Config) { c.Finance.Approval = "sometimes" }},
		{"brackets", func(c *Config) { c.Tax.Brackets = nil }},
		{"bracket rate", func(c *Config) { c.Tax.Brackets[1].Rate = 2 }},
		{"population", func(c *Config) { c.Households.Initial = 500 }},
		{"smoothing", func(c *Config) { c.Policy.Taylor.Smoothing = 1.2 }},
		{"firms", func(c *Config) { c.Firms.Count = 0 }},
		{"window", func(c *Config) { c.Goods.Window = 0 }},
		{"benefit", func(c *Config) { c.Welfare.BenefitRate = 3 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, simerr.IsFatal(err))
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "city.yaml")
	require.NoError(t, os.WriteFile(path, []byte("finance:\n  approval: limits\n  max_loan: 5000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	p, ok := cfg.Finance.ApprovalPolicy().(finance.LimitPolicy)
	require.True(t, ok)
	assert.Equal(t, 5000.0, p.MaxLoan)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshal_RoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)
	cfg, err := Decode(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
