package policy

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/citysim/internal/simerr"
)

// TaylorRule sets a target policy rate from inflation and the output gap:
//
//	r̂ = max(0, rⁿ + π* + α(π − π*) + β·gap)
//
// smoothed against the previous rate as ρ·r_{t−1} + (1−ρ)·r̂.
type TaylorRule struct {
	NaturalRate     float64 `json:"natural_rate" yaml:"natural_rate"`
	InflationTarget float64 `json:"inflation_target" yaml:"inflation_target"`
	Alpha           float64 `json:"alpha" yaml:"alpha"`         // inflation response
	Beta            float64 `json:"beta" yaml:"beta"`           // output-gap response
	Smoothing       float64 `json:"smoothing" yaml:"smoothing"` // ρ
}

// DefaultTaylorRule returns the standard coefficients.
func DefaultTaylorRule() TaylorRule {
	return TaylorRule{
		NaturalRate:     0.02,
		InflationTarget: 0.02,
		Alpha:           1.5,
		Beta:            0.5,
		Smoothing:       0.8,
	}
}

// Validate checks the coefficients.
func (r TaylorRule) Validate() error {
	if r.Smoothing < 0 || r.Smoothing > 1 {
		return simerr.Configuration("taylor smoothing %v outside [0,1]", r.Smoothing)
	}
	if r.Alpha < 0 || r.Beta < 0 {
		return simerr.Configuration("taylor coefficients must be non-negative (alpha=%v beta=%v)", r.Alpha, r.Beta)
	}
	return nil
}

// OutputGap is (gdp − potential)/potential, 0 without a potential.
func OutputGap(gdp, potential float64) float64 {
	if potential <= 0 {
		return 0
	}
	return (gdp - potential) / potential
}

// Target returns the unsmoothed target rate.
func (r TaylorRule) Target(inflation, gdp, potential float64) float64 {
	t := r.NaturalRate + r.InflationTarget +
		r.Alpha*(inflation-r.InflationTarget) +
		r.Beta*OutputGap(gdp, potential)
	return math.Max(0, t)
}

// Smooth blends a target with the previous rate.
func (r TaylorRule) Smooth(target, previous float64) float64 {
	return r.Smoothing*previous + (1-r.Smoothing)*target
}

// CentralBank is the default policy-rate source. Potential GDP is the mean
// of the last PotentialWindow GDP observations.
type CentralBank struct {
	Rule            TaylorRule
	PotentialWindow int
}

// NewCentralBank creates a central bank applying rule.
func NewCentralBank(rule TaylorRule, window int) (*CentralBank, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = 12
	}
	return &CentralBank{Rule: rule, PotentialWindow: window}, nil
}

// NextRate computes the smoothed policy rate from the latest inflation and
// the GDP series (oldest first). With no GDP history the rate is unchanged.
func (cb *CentralBank) NextRate(current, inflation float64, gdp []float64) (float64, error) {
	if len(gdp) == 0 {
		return current, nil
	}
	latest := gdp[len(gdp)-1]
	if math.IsNaN(latest) || math.IsNaN(inflation) {
		return current, simerr.InvariantViolation("policy rate inputs are NaN")
	}
	window := gdp
	if len(window) > cb.PotentialWindow {
		window = window[len(window)-cb.PotentialWindow:]
	}
	potential := floats.Sum(window) / float64(len(window))
	target := cb.Rule.Target(inflation, latest, potential)
	return cb.Rule.Smooth(target, current), nil
}
