// Package shocks provides a deterministic total-factor-productivity shock
// field. Each firm walks its own smooth track through 2D simplex noise, so
// productivity drifts rather than jumping between periods.
package shocks

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// DefaultAmplitude is the peak relative TFP deviation.
const DefaultAmplitude = 0.02

const (
	frequency = 0.15 // noise units per period
	rowGap    = 7.31 // distance between firm tracks
)

// Field maps (firm, period) to a TFP multiplier.
type Field struct {
	amplitude float64
	noise     opensimplex.Noise
}

// NewField creates a shock field for a run seed. Amplitude 0 disables shocks.
func NewField(seed int64, amplitude float64) *Field {
	if amplitude < 0 || math.IsNaN(amplitude) {
		amplitude = 0
	}
	return &Field{
		amplitude: amplitude,
		noise:     opensimplex.New(seed),
	}
}

// Amplitude returns the configured amplitude.
func (f *Field) Amplitude() float64 { return f.amplitude }

// Multiplier returns 1 + amplitude × noise for the firm in the period. The
// result stays within [1-amplitude, 1+amplitude].
func (f *Field) Multiplier(firm uint64, period int) float64 {
	if f == nil || f.amplitude == 0 {
		return 1
	}
	n := f.noise.Eval2(float64(period)*frequency, float64(firm)*rowGap)
	n = max(-1, min(1, n))
	return 1 + f.amplitude*n
}
