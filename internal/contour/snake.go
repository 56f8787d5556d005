// Package contour refines ellipse boundary samples with an active contour
// (snake). The snake is a closed polyline that relaxes under internal
// elasticity and rigidity forces while being pulled towards bright lines
// or strong edges of the smoothed frame.
package contour

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pupiltrack/internal/edges"
	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

var (
	// ErrEmptyFrame is returned for a nil or zero-sized frame.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrTooFewPoints is returned for seeds with fewer than MinPoints points.
	ErrTooFewPoints = errors.New("too few snake points")
	// ErrSingularSystem is returned when the snake's internal energy
	// matrix cannot be inverted for the configured parameters.
	ErrSingularSystem = errors.New("singular snake system")
)

// MinPoints is the smallest closed snake.
const MinPoints = 3

// Snake is an active contour refiner with periodic boundary conditions.
// A Snake is safe for concurrent use.
type Snake struct {
	cfg Config
}

// NewSnake creates a refiner with the given configuration.
func NewSnake(cfg Config) *Snake {
	return &Snake{cfg: cfg}
}

// Refine evolves the closed contour through seed over frame and returns the
// relaxed points, one per seed point, in the same order.
func (s *Snake) Refine(frame *mat.Dense, seed []ellipse.Point) ([]ellipse.Point, error) {
	if frame == nil || frame.IsEmpty() {
		return nil, ErrEmptyFrame
	}
	if len(seed) < MinPoints {
		return nil, fmt.Errorf("%w: %d", ErrTooFewPoints, len(seed))
	}

	inv, err := s.system(len(seed))
	if err != nil {
		return nil, err
	}
	fx, fy := s.forces(frame)

	n := len(seed)
	x := mat.NewVecDense(n, nil)
	y := mat.NewVecDense(n, nil)
	for i, p := range seed {
		x.SetVec(i, p.X)
		y.SetVec(i, p.Y)
	}

	bx := mat.NewVecDense(n, nil)
	by := mat.NewVecDense(n, nil)
	xn := mat.NewVecDense(n, nil)
	yn := mat.NewVecDense(n, nil)

	var xsave, ysave [convergenceOrder][]float64
	for j := range xsave {
		xsave[j] = make([]float64, n)
		ysave[j] = make([]float64, n)
	}

	iter := 0
	converged := false
	for ; iter < s.cfg.MaxIterations; iter++ {
		for i := 0; i < n; i++ {
			xi, yi := x.AtVec(i), y.AtVec(i)
			bx.SetVec(i, s.cfg.Gamma*xi+bilinear(fx, xi, yi))
			by.SetVec(i, s.cfg.Gamma*yi+bilinear(fy, xi, yi))
		}
		xn.MulVec(inv, bx)
		yn.MulVec(inv, by)
		for i := 0; i < n; i++ {
			x.SetVec(i, x.AtVec(i)+MaxPixelMove*math.Tanh(xn.AtVec(i)-x.AtVec(i)))
			y.SetVec(i, y.AtVec(i)+MaxPixelMove*math.Tanh(yn.AtVec(i)-y.AtVec(i)))
		}

		j := iter % (convergenceOrder + 1)
		if j < convergenceOrder {
			copy(xsave[j], x.RawVector().Data)
			copy(ysave[j], y.RawVector().Data)
			continue
		}
		if movement(xsave[:], ysave[:], x, y) < s.cfg.Convergence {
			converged = true
			break
		}
	}
	if !converged {
		diagf("snake of %d points did not converge in %d iterations", n, s.cfg.MaxIterations)
	}
	tracef("snake of %d points: %d iterations", n, iter)

	out := make([]ellipse.Point, n)
	for i := range out {
		out[i] = ellipse.Point{X: x.AtVec(i), Y: y.AtVec(i)}
	}
	return out, nil
}

// system returns the inverse of the pentadiagonal internal energy matrix
// plus gamma on the diagonal, with periodic wrap-around.
func (s *Snake) system(n int) (*mat.Dense, error) {
	a, b, g := s.cfg.Alpha, s.cfg.Beta, s.cfg.Gamma
	m := mat.NewDense(n, n, nil)
	add := func(i, offset int, v float64) {
		j := ((i+offset)%n + n) % n
		m.Set(i, j, m.At(i, j)+v)
	}
	for i := 0; i < n; i++ {
		add(i, 0, 2*a+6*b+g)
		add(i, 1, -a-4*b)
		add(i, -1, -a-4*b)
		add(i, 2, b)
		add(i, -2, b)
	}

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}
	return &inv, nil
}

// forces returns the x and y derivatives of the external energy
// wLine*I + wEdge*|∇I| of the Gaussian-smoothed frame.
func (s *Snake) forces(frame *mat.Dense) (fx, fy *mat.Dense) {
	src := edges.ToMat(frame)
	defer src.Close()

	smoothed := gocv.NewMat()
	defer smoothed.Close()
	if s.cfg.Sigma > 0 {
		gocv.GaussianBlur(src, &smoothed, image.Point{}, s.cfg.Sigma, s.cfg.Sigma, gocv.BorderReplicate)
	} else {
		src.CopyTo(&smoothed)
	}

	// Sobel gradient magnitude with the 3x3 kernel normalised by 1/4 and
	// the magnitude by 1/sqrt(2).
	sx := gocv.NewMat()
	defer sx.Close()
	sy := gocv.NewMat()
	defer sy.Close()
	gocv.Sobel(smoothed, &sx, gocv.MatTypeCV64F, 1, 0, 3, 0.25, 0, gocv.BorderReplicate)
	gocv.Sobel(smoothed, &sy, gocv.MatTypeCV64F, 0, 1, 3, 0.25, 0, gocv.BorderReplicate)
	edge := gocv.NewMat()
	defer edge.Close()
	gocv.Magnitude(sx, sy, &edge)
	edge.MultiplyFloat(float32(1 / math.Sqrt2))

	energy := gocv.NewMat()
	defer energy.Close()
	gocv.AddWeighted(smoothed, s.cfg.WLine, edge, s.cfg.WEdge, 0, &energy)

	// Central differences of the energy.
	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	gocv.Sobel(energy, &gx, gocv.MatTypeCV64F, 1, 0, 1, 0.5, 0, gocv.BorderReplicate)
	gocv.Sobel(energy, &gy, gocv.MatTypeCV64F, 0, 1, 1, 0.5, 0, gocv.BorderReplicate)

	return edges.FromMat(gx), edges.FromMat(gy)
}

// bilinear samples m at (x, y), clamping to the image bounds.
func bilinear(m *mat.Dense, x, y float64) float64 {
	rows, cols := m.Dims()
	x = math.Min(math.Max(x, 0), float64(cols-1))
	y = math.Min(math.Max(y, 0), float64(rows-1))
	if x != x || y != y {
		return 0
	}
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, cols-1), min(y0+1, rows-1)
	tx, ty := x-float64(x0), y-float64(y0)

	top := m.At(y0, x0)*(1-tx) + m.At(y0, x1)*tx
	bottom := m.At(y1, x0)*(1-tx) + m.At(y1, x1)*tx
	return top*(1-ty) + bottom*ty
}

// movement returns the smallest, over the saved snakes, of the largest
// per-point L1 distance to the current snake.
func movement(xsave, ysave [][]float64, x, y *mat.VecDense) float64 {
	best := math.Inf(1)
	for j := range xsave {
		var worst float64
		for i := range xsave[j] {
			d := math.Abs(xsave[j][i]-x.AtVec(i)) + math.Abs(ysave[j][i]-y.AtVec(i))
			worst = math.Max(worst, d)
		}
		best = math.Min(best, worst)
	}
	return best
}
