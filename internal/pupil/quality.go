package pupil

import (
	"fmt"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

// QualityInput carries the per-frame evidence scored by ScoreQuality.
// Means are taken over the track's recent history including this frame.
type QualityInput struct {
	PointCount     float64
	MeanPointCount float64
	Residual       float64
	MeanResidual   float64
	Candidate      ellipse.Params
	FitOK          bool
}

// Quality holds the multipliers that scale a frame's model update.
type Quality struct {
	PointMult    float64
	ResidualMult float64
	Oblongity    float64
	ComboMult    float64
}

func (q Quality) String() string {
	return fmt.Sprintf("points=%.3f residual=%.3f oblongity=%.3f combo=%.3f",
		q.PointMult, q.ResidualMult, q.Oblongity, q.ComboMult)
}

// ScoreQuality rates a candidate fit. Each multiplier is clipped to [0, 1]
// and the combined multiplier is their product.
func ScoreQuality(in QualityInput) Quality {
	var q Quality
	if in.MeanPointCount > 0 {
		q.PointMult = clip(in.PointCount/in.MeanPointCount, 0, 1)
	}
	if in.Residual > 0 {
		q.ResidualMult = clip(in.MeanResidual/in.Residual, 0, 1)
	}
	if in.FitOK {
		q.Oblongity = in.Candidate.Oblongity()
	}
	q.ComboMult = q.PointMult * q.ResidualMult * q.Oblongity
	return q
}

// clip bounds v to [lo, hi]. NaN clips to lo.
func clip(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
