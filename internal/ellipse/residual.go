package ellipse

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	residualScanSteps  = 16
	residualNewtonIter = 12
)

// Residuals returns the orthogonal distance of each point to the ellipse
// boundary.
func Residuals(p Params, points []Point) []float64 {
	out := make([]float64, len(points))
	for i, pt := range points {
		out[i] = Distance(p, pt)
	}
	return out
}

// MeanSquaredResidual returns the mean squared orthogonal distance of
// points to the ellipse, or 0 for an empty set.
func MeanSquaredResidual(p Params, points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	sq := Residuals(p, points)
	for i, r := range sq {
		sq[i] = r * r
	}
	return stat.Mean(sq, nil)
}

// Distance returns the orthogonal distance from pt to the ellipse boundary.
// The closest parametric angle is found by a coarse scan followed by Newton
// refinement of the stationarity condition.
func Distance(p Params, pt Point) float64 {
	x, y := ToEllipseFrame(p, pt)
	a, b := math.Abs(p.A), math.Abs(p.B)

	dist2 := func(t float64) float64 {
		dx := a*math.Cos(t) - x
		dy := b*math.Sin(t) - y
		return dx*dx + dy*dy
	}

	best := 0.0
	bestD := math.Inf(1)
	for i := 0; i < residualScanSteps; i++ {
		t := 2 * math.Pi * float64(i) / residualScanSteps
		if d := dist2(t); d < bestD {
			best, bestD = t, d
		}
	}

	// d/dt of half the squared distance and its derivative.
	t := best
	for i := 0; i < residualNewtonIter; i++ {
		st, ct := math.Sin(t), math.Cos(t)
		g := (b*b-a*a)*st*ct + a*x*st - b*y*ct
		h := (b*b-a*a)*(ct*ct-st*st) + a*x*ct + b*y*st
		if h <= 0 {
			break
		}
		step := g / h
		t -= step
		if math.Abs(step) < 1e-12 {
			break
		}
	}
	if d := dist2(t); d < bestD {
		bestD = d
	}
	return math.Sqrt(bestD)
}

// ToEllipseFrame translates pt to the ellipse center and rotates it by
// -Theta so the ellipse axes line up with the coordinate axes.
func ToEllipseFrame(p Params, pt Point) (x, y float64) {
	dx, dy := pt.X-p.X, pt.Y-p.Y
	cosT, sinT := math.Cos(p.Theta), math.Sin(p.Theta)
	return dx*cosT + dy*sinT, -dx*sinT + dy*cosT
}
