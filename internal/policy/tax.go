// Package policy provides the fiscal and monetary rules: a progressive
// income tax schedule, the Taylor rule and the central bank that applies it.
package policy

import (
	"math"
	"sort"

	"github.com/talgya/citysim/internal/simerr"
)

// Bracket taxes income above Threshold at Rate, up to the next threshold.
type Bracket struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Rate      float64 `json:"rate" yaml:"rate"`
}

// DefaultBrackets is the annual schedule.
var DefaultBrackets = []Bracket{
	{0, 0.0},
	{20000, 0.1},
	{50000, 0.2},
	{100000, 0.3},
}

// TaxSchedule is a validated, sorted bracket schedule.
type TaxSchedule struct {
	brackets []Bracket
}

// NewTaxSchedule validates and sorts brackets. Rates must lie in [0,1] and
// thresholds must be non-negative and distinct.
func NewTaxSchedule(brackets []Bracket) (*TaxSchedule, error) {
	if len(brackets) == 0 {
		return nil, simerr.Configuration("tax schedule has no brackets")
	}
	sorted := append([]Bracket(nil), brackets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })
	for i, b := range sorted {
		if b.Rate < 0 || b.Rate > 1 || math.IsNaN(b.Rate) {
			return nil, simerr.Configuration("tax bracket %d: rate %v outside [0,1]", i, b.Rate)
		}
		if b.Threshold < 0 || math.IsNaN(b.Threshold) {
			return nil, simerr.Configuration("tax bracket %d: negative threshold %v", i, b.Threshold)
		}
		if i > 0 && b.Threshold == sorted[i-1].Threshold {
			return nil, simerr.Configuration("tax bracket %d: duplicate threshold %v", i, b.Threshold)
		}
	}
	return &TaxSchedule{brackets: sorted}, nil
}

// Brackets returns a copy of the sorted schedule.
func (s *TaxSchedule) Brackets() []Bracket {
	return append([]Bracket(nil), s.brackets...)
}

// Tax computes Σ rate_k × (min(income, threshold_{k+1}) − threshold_k) over
// the brackets the income reaches.
func (s *TaxSchedule) Tax(income float64) float64 {
	if income <= 0 {
		return 0
	}
	tax := 0.0
	for i, b := range s.brackets {
		if income <= b.Threshold {
			break
		}
		upper := math.Inf(1)
		if i+1 < len(s.brackets) {
			upper = s.brackets[i+1].Threshold
		}
		tax += (math.Min(income, upper) - b.Threshold) * b.Rate
	}
	return tax
}

// PeriodTax taxes one period's income against an annual schedule by
// annualizing it, so monthly wages meet annual thresholds.
func (s *TaxSchedule) PeriodTax(income float64, periodsPerYear int) float64 {
	if periodsPerYear <= 1 {
		return s.Tax(income)
	}
	n := float64(periodsPerYear)
	return s.Tax(income*n) / n
}

// EffectiveRate is tax over income, 0 for non-positive income.
func (s *TaxSchedule) EffectiveRate(income float64) float64 {
	if income <= 0 {
		return 0
	}
	return s.Tax(income) / income
}
