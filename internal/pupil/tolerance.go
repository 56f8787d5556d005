package pupil

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ToleranceInput carries the state ToleranceAdapter needs for one frame.
type ToleranceInput struct {
	FrameIndex    int
	WarmupFrames  int
	InitialRadius float64
	MaxTolerance  float64
	HalfLife      float64

	// Short-term histories of x, y, a and b, oldest first.
	Series [4][]float64

	PointCount     float64
	MeanPointCount float64
	Residual       float64
	MeanResidual   float64
}

// AdaptTolerance returns the point-filter tolerance for the next frame.
// During warm-up it is a quarter of the initial radius. Afterwards it
// follows the spread of recent parameters scaled by how this frame's point
// count and residual compare to their history.
func AdaptTolerance(in ToleranceInput) float64 {
	if in.FrameIndex < in.WarmupFrames {
		return clip(in.InitialRadius/4, 0, in.MaxTolerance)
	}
	paramStd := ParamStd(in.Series, in.HalfLife)
	qp := QualityProportion(in.PointCount, in.MeanPointCount, in.Residual, in.MeanResidual)
	return ScaleTolerance(paramStd, qp, in.MaxTolerance)
}

// ScaleTolerance computes clip(log(paramStd * qualityProp), 0, max). The
// previous tolerance scales the parameter spread into a proportion and back
// again, so it cancels out of the product. A NaN result becomes 0.
func ScaleTolerance(paramStd, qualityProp, max float64) float64 {
	return clip(math.Log(paramStd*qualityProp), 0, max)
}

// QualityProportion averages how far the point count fell below its mean
// and how far the residual rose above its mean, then halves the excess
// over 1. Proportions with a non-positive denominator count as 1.
func QualityProportion(count, meanCount, residual, meanResidual float64) float64 {
	pointProp := 1.0
	if count > 0 {
		pointProp = meanCount / count
	}
	residProp := 1.0
	if meanResidual > 0 {
		residProp = residual / meanResidual
	}
	return ((pointProp+residProp)/2-1)/2 + 1
}

// ParamStd returns the mean exponentially weighted standard deviation of
// the given parameter series.
func ParamStd(series [4][]float64, halfLife float64) float64 {
	var stds [4]float64
	for i, s := range series {
		stds[i] = EWMStd(s, halfLife)
	}
	return stat.Mean(stds[:], nil)
}

// EWMStd returns the bias-corrected exponentially weighted standard
// deviation of xs, with the most recent sample weighted 1 and weights
// halving every halfLife samples. Fewer than two samples yield NaN.
func EWMStd(xs []float64, halfLife float64) float64 {
	n := len(xs)
	if n < 2 || halfLife <= 0 {
		return math.NaN()
	}
	alpha := 1 - math.Exp(-math.Ln2/halfLife)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = math.Pow(1-alpha, float64(n-1-i))
	}

	mean := stat.Mean(xs, weights)
	sq := make([]float64, n)
	for i, x := range xs {
		sq[i] = (x - mean) * (x - mean)
	}
	biased := stat.Mean(sq, weights)

	v1 := floats.Sum(weights)
	v2 := floats.Dot(weights, weights)
	denom := v1*v1 - v2
	if denom <= 0 {
		return math.NaN()
	}
	return math.Sqrt(biased * v1 * v1 / denom)
}
