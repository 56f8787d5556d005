package pupil

import (
	"math"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

// MinAxis is the smallest semi-axis the filter divides by.
const MinAxis = 1e-3

// FilterPoints keeps the points lying inside the annulus of half-width
// tolerance around the model boundary. A point is kept when its normalised
// distance (x'/a)² + (y'/b)² lies strictly between
// max((a-tol)/a, (b-tol)/b) and min((a+tol)/a, (b+tol)/b), where (x', y')
// are its coordinates in the model frame. Input order is preserved.
func FilterPoints(points []ellipse.Point, model ellipse.Params, tolerance float64) []ellipse.Point {
	a := math.Max(model.A, MinAxis)
	b := math.Max(model.B, MinAxis)
	minR := math.Max((a-tolerance)/a, (b-tolerance)/b)
	maxR := math.Min((a+tolerance)/a, (b+tolerance)/b)

	kept := make([]ellipse.Point, 0, len(points))
	if minR >= maxR {
		return kept
	}
	for _, pt := range points {
		x, y := ellipse.ToEllipseFrame(model, pt)
		normDist := (x/a)*(x/a) + (y/b)*(y/b)
		if normDist > minR && normDist < maxR {
			kept = append(kept, pt)
		}
	}
	return kept
}
