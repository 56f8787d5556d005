package ellipse

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinFitPoints is the smallest point set a conic can be fit to.
const MinFitPoints = 5

var (
	// ErrTooFewPoints is returned when fewer than MinFitPoints are supplied.
	ErrTooFewPoints = errors.New("ellipse: too few points to fit")
	// ErrFitFailed is returned when the points do not determine an ellipse
	// (collinear points, a hyperbola or parabola, or a singular system).
	ErrFitFailed = errors.New("ellipse: fit failed")
)

// Fitter fits an ellipse to a point set.
type Fitter interface {
	Fit(points []Point) (Params, error)
}

// LeastSquaresFitter implements the direct algebraic least-squares ellipse
// fit of Halir and Flusser. Points are centered and scaled before the fit
// so the scatter matrices stay well conditioned for pixel coordinates.
type LeastSquaresFitter struct{}

// Fit returns the ellipse minimizing the algebraic distance to points.
func (LeastSquaresFitter) Fit(points []Point) (Params, error) {
	return Fit(points)
}

// Fit is the function form of LeastSquaresFitter.Fit.
func Fit(points []Point) (Params, error) {
	n := len(points)
	if n < MinFitPoints {
		return Params{}, fmt.Errorf("%w: got %d, need %d", ErrTooFewPoints, n, MinFitPoints)
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
	}
	mx, my := stat.Mean(xs, nil), stat.Mean(ys, nil)

	var scale float64
	for i := range xs {
		xs[i] -= mx
		ys[i] -= my
		scale += xs[i]*xs[i] + ys[i]*ys[i]
	}
	scale = math.Sqrt(scale / float64(n))
	if !(scale > 0) {
		return Params{}, fmt.Errorf("%w: points are coincident", ErrFitFailed)
	}
	for i := range xs {
		xs[i] /= scale
		ys[i] /= scale
	}

	// Quadratic and linear parts of the design matrix.
	d1 := mat.NewDense(n, 3, nil)
	d2 := mat.NewDense(n, 3, nil)
	for i := range xs {
		x, y := xs[i], ys[i]
		d1.SetRow(i, []float64{x * x, x * y, y * y})
		d2.SetRow(i, []float64{x, y, 1})
	}

	var s1, s2, s3 mat.Dense
	s1.Mul(d1.T(), d1)
	s2.Mul(d1.T(), d2)
	s3.Mul(d2.T(), d2)

	var s3inv mat.Dense
	if err := s3inv.Inverse(&s3); err != nil {
		return Params{}, fmt.Errorf("%w: singular linear scatter: %v", ErrFitFailed, err)
	}

	// t maps quadratic coefficients to the optimal linear coefficients.
	var t mat.Dense
	t.Mul(&s3inv, s2.T())
	t.Scale(-1, &t)

	var reduced mat.Dense
	reduced.Mul(&s2, &t)
	reduced.Add(&s1, &reduced)

	// Premultiply by the inverse of the ellipse constraint matrix
	// C1 = [[0 0 2] [0 -1 0] [2 0 0]].
	m := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ {
		m.Set(0, j, reduced.At(2, j)/2)
		m.Set(1, j, -reduced.At(1, j))
		m.Set(2, j, reduced.At(0, j)/2)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenRight); !ok {
		return Params{}, fmt.Errorf("%w: eigen decomposition did not converge", ErrFitFailed)
	}
	values := eig.Values(nil)
	var vectors mat.CDense
	eig.VectorsTo(&vectors)

	best := -1
	bestVal := math.Inf(1)
	for j := range values {
		v0, v1, v2 := vectors.At(0, j), vectors.At(1, j), vectors.At(2, j)
		if !isReal(v0) || !isReal(v1) || !isReal(v2) {
			continue
		}
		cond := 4*real(v0)*real(v2) - real(v1)*real(v1)
		if cond <= 0 {
			continue
		}
		if lv := math.Abs(real(values[j])); lv < bestVal {
			best, bestVal = j, lv
		}
	}
	if best < 0 {
		return Params{}, fmt.Errorf("%w: no elliptical solution", ErrFitFailed)
	}

	a1 := mat.NewVecDense(3, []float64{
		real(vectors.At(0, best)),
		real(vectors.At(1, best)),
		real(vectors.At(2, best)),
	})
	// Fix the eigenvector sign so the quadratic form is positive definite.
	// This makes A the major semi-axis and keeps the representation stable
	// from frame to frame.
	if a1.AtVec(0) < 0 {
		a1.ScaleVec(-1, a1)
	}
	var a2 mat.VecDense
	a2.MulVec(&t, a1)

	p, err := conicToParams(a1.AtVec(0), a1.AtVec(1), a1.AtVec(2), a2.AtVec(0), a2.AtVec(1), a2.AtVec(2))
	if err != nil {
		return Params{}, err
	}

	// Undo normalisation; rotation is invariant under uniform scaling.
	p.X = p.X*scale + mx
	p.Y = p.Y*scale + my
	p.A *= scale
	p.B *= scale
	return p, nil
}

// conicToParams converts the conic a x² + b xy + c y² + d x + e y + f = 0
// into center, semi-axes and rotation.
func conicToParams(a, b, c, d, e, f float64) (Params, error) {
	b, d, e = b/2, d/2, e/2

	den := b*b - a*c
	if den >= 0 {
		return Params{}, fmt.Errorf("%w: conic is not an ellipse", ErrFitFailed)
	}

	x0 := (c*d - b*e) / den
	y0 := (a*e - b*d) / den

	num := a*e*e + c*d*d + f*b*b - 2*b*d*e - a*c*f
	term := math.Sqrt((a-c)*(a-c) + 4*b*b)
	width := math.Sqrt(2 * num / (den * (term - (a + c))))
	height := math.Sqrt(2 * num / (den * (-term - (a + c))))

	var phi float64
	if term > 1e-9*math.Abs(a+c) {
		phi = 0.5 * math.Atan(2*b/(a-c))
		if a > c {
			phi += math.Pi / 2
		}
	}

	p := Params{X: x0, Y: y0, A: width, B: height, Theta: phi}
	if !p.Valid(0) || p.A == 0 || p.B == 0 {
		return Params{}, fmt.Errorf("%w: degenerate axes %v", ErrFitFailed, p)
	}
	return p, nil
}

func isReal(v complex128) bool {
	return math.Abs(imag(v)) <= 1e-9*math.Max(1, cmplx.Abs(v))
}
