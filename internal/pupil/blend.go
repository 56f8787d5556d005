package pupil

import (
	"math"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

// Blender moves a model towards a candidate fit, weighted by fit quality.
type Blender struct {
	MaxJump float64 // Per-parameter change at or above which the update is rejected
	Gain    float64 // Fraction of the weighted delta applied
}

// DefaultBlender returns the blender used by the reference tracker.
func DefaultBlender() Blender {
	return Blender{MaxJump: 10, Gain: 0.8}
}

// Blend returns prev moved towards cand. For x, y, a and b the weighted
// delta cand-prev is applied only when |delta| < MaxJump. Theta is taken
// from the candidate.
func (bl Blender) Blend(prev, cand ellipse.Params, comboMult float64) ellipse.Params {
	pv := prev.Values()
	cv := cand.Values()
	out := pv
	for i := 0; i < 4; i++ {
		delta := cv[i] - pv[i]
		if math.Abs(delta) < bl.MaxJump {
			out[i] = pv[i] + delta*comboMult*bl.Gain
		}
	}
	out[4] = cv[4]
	return ellipse.FromValues(out)
}

// BlendModel blends with DefaultBlender.
func BlendModel(prev, cand ellipse.Params, comboMult float64) ellipse.Params {
	return DefaultBlender().Blend(prev, cand, comboMult)
}
