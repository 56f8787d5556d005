// Package ellipse holds the 5-parameter ellipse model used by the pupil
// tracker: the value type, boundary prediction, orthogonal residuals and an
// algebraic least-squares fitter.
//
// Angles follow the usual image convention with x to the right and y down:
// Theta rotates the A axis from +x towards +y.
package ellipse

import (
	"fmt"
	"math"
)

// NumParams is the number of ellipse parameters (x, y, a, b, theta).
const NumParams = 5

// Point is a 2D image coordinate (x = column, y = row).
type Point struct {
	X float64
	Y float64
}

// Params describes an ellipse by its center, semi-axes and rotation.
type Params struct {
	X     float64 // Center x
	Y     float64 // Center y
	A     float64 // Semi-axis along the rotated x axis
	B     float64 // Semi-axis along the rotated y axis
	Theta float64 // Rotation (radians)
}

// Circle returns the parameters of a circle of the given radius.
func Circle(x, y, radius float64) Params {
	return Params{X: x, Y: y, A: radius, B: radius}
}

// Values returns the parameters in canonical order x, y, a, b, theta.
func (p Params) Values() [NumParams]float64 {
	return [NumParams]float64{p.X, p.Y, p.A, p.B, p.Theta}
}

// FromValues is the inverse of Params.Values.
func FromValues(v [NumParams]float64) Params {
	return Params{X: v[0], Y: v[1], A: v[2], B: v[3], Theta: v[4]}
}

// Diameter returns the longest semi-axis, recorded as the pupil diameter.
func (p Params) Diameter() float64 {
	return math.Max(p.A, p.B)
}

// Oblongity returns min(a,b)/max(a,b) clipped to [0, 1]. A circle is 1 and
// a collapsed ellipse tends to 0.
func (p Params) Oblongity() float64 {
	hi := math.Max(p.A, p.B)
	if !(hi > 0) {
		return 0
	}
	return clip(math.Min(p.A, p.B)/hi, 0, 1)
}

// Valid reports whether all parameters are finite and both axes are at
// least minAxis.
func (p Params) Valid(minAxis float64) bool {
	for _, v := range p.Values() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return p.A >= minAxis && p.B >= minAxis
}

func (p Params) String() string {
	return fmt.Sprintf("(x=%.3f y=%.3f a=%.3f b=%.3f theta=%.4f)", p.X, p.Y, p.A, p.B, p.Theta)
}

// PredictXY returns the boundary points at the given parametric angles.
func PredictXY(p Params, thetas []float64) []Point {
	cosT, sinT := math.Cos(p.Theta), math.Sin(p.Theta)
	out := make([]Point, len(thetas))
	for i, t := range thetas {
		ct, st := math.Cos(t), math.Sin(t)
		out[i] = Point{
			X: p.X + p.A*cosT*ct - p.B*sinT*st,
			Y: p.Y + p.A*sinT*ct + p.B*cosT*st,
		}
	}
	return out
}

// SampleBoundary returns n points spaced uniformly in parametric angle over
// [0, 2π), endpoint excluded.
func SampleBoundary(p Params, n int) []Point {
	if n <= 0 {
		return nil
	}
	return PredictXY(p, UniformAngles(n))
}

// UniformAngles returns n angles spaced uniformly over [0, 2π).
func UniformAngles(n int) []float64 {
	thetas := make([]float64, n)
	step := 2 * math.Pi / float64(n)
	for i := range thetas {
		thetas[i] = float64(i) * step
	}
	return thetas
}

// Perimeter returns Ramanujan's approximation of the ellipse circumference.
func Perimeter(p Params) float64 {
	a, b := math.Abs(p.A), math.Abs(p.B)
	return math.Pi * (3*(a+b) - math.Sqrt((3*a+b)*(a+3*b)))
}

// Coverage returns the number of supporting points per unit of perimeter.
// Fits supported by a full ring of edge pixels score close to 1.
func Coverage(p Params, nPoints int) float64 {
	perim := Perimeter(p)
	if !(perim > 0) {
		return 0
	}
	return float64(nPoints) / perim
}

// AngleDiff returns the difference between two ellipse orientations modulo
// π, in [-π/2, π/2). Ellipses rotated by π are identical.
func AngleDiff(a, b float64) float64 {
	d := math.Mod(a-b, math.Pi)
	if d >= math.Pi/2 {
		d -= math.Pi
	} else if d < -math.Pi/2 {
		d += math.Pi
	}
	return d
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
