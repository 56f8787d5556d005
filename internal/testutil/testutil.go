// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic pupil data (boundary points and
// rendered frames) and assertion helpers used across the tracker tests.
package testutil

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

// EllipsePoints returns n points evenly spaced in angle on the boundary of p.
func EllipsePoints(p ellipse.Params, n int) []ellipse.Point {
	return ellipse.SampleBoundary(p, n)
}

// NoisyEllipsePoints returns EllipsePoints perturbed by Gaussian noise with
// standard deviation sigma. The same seed always yields the same points.
func NoisyEllipsePoints(p ellipse.Params, n int, sigma float64, seed uint64) []ellipse.Point {
	pts := EllipsePoints(p, n)
	if sigma <= 0 {
		return pts
	}
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	for i := range pts {
		pts[i].X += noise.Rand()
		pts[i].Y += noise.Rand()
	}
	return pts
}

// PupilFrame renders a width x height grayscale frame with the interior of p
// set to inside and everything else set to outside. Rows index y.
func PupilFrame(width, height int, p ellipse.Params, inside, outside float64) *mat.Dense {
	frame := mat.NewDense(height, width, nil)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			u, v := ellipse.ToEllipseFrame(p, ellipse.Point{X: float64(x), Y: float64(y)})
			if (u/p.A)*(u/p.A)+(v/p.B)*(v/p.B) <= 1 {
				frame.Set(y, x, inside)
			} else {
				frame.Set(y, x, outside)
			}
		}
	}
	return frame
}

// AssertParamsNear fails the test if any of x, y, a, b differ by more than
// tol, or theta differs by more than tol radians modulo pi. Theta is not
// compared for near-circular ellipses, where it is undefined.
func AssertParamsNear(t *testing.T, got, want ellipse.Params, tol float64) {
	t.Helper()
	gv, wv := got.Values(), want.Values()
	names := [...]string{"x", "y", "a", "b"}
	for i, name := range names {
		if math.Abs(gv[i]-wv[i]) > tol {
			t.Errorf("%s = %.4f, want %.4f (±%.4f)", name, gv[i], wv[i], tol)
		}
	}
	if want.Oblongity() < 0.99 && math.Abs(ellipse.AngleDiff(got.Theta, want.Theta)) > tol {
		t.Errorf("theta = %.4f, want %.4f (±%.4f)", got.Theta, want.Theta, tol)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
