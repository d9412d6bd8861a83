package agents

import "math"

// CobbDouglas returns TFP × K^α × L^(1−α). Non-positive inputs produce 0.
func CobbDouglas(tfp, capital, labor, alpha float64) float64 {
	if tfp <= 0 || capital <= 0 || labor <= 0 {
		return 0
	}
	return tfp * math.Pow(capital, alpha) * math.Pow(labor, 1-alpha)
}

// EffectiveLabor combines a workforce into one labor input: the sum of each
// employee's skill fit against the firm's requirements. A fully qualified
// worker contributes 1, an under-qualified one proportionally less.
func EffectiveLabor(requirements SkillSet, workers []SkillSet) float64 {
	total := 0.0
	for _, w := range workers {
		total += SkillFit(w, requirements)
	}
	return total
}

// Produce computes the firm's period output for a TFP multiplier and its
// effective labor. A positive target caps output.
func (f *Firm) Produce(tfpMultiplier, effectiveLabor float64) float64 {
	if f.Bankrupt {
		return 0
	}
	out := CobbDouglas(f.TFP*tfpMultiplier, f.Capital, effectiveLabor, f.Alpha)
	if f.TargetOutput > 0 && out > f.TargetOutput {
		out = f.TargetOutput
	}
	return out
}
