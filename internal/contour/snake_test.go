package contour

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
	"github.com/banshee-data/pupiltrack/internal/testutil"
)

func meanBoundaryDistance(p ellipse.Params, pts []ellipse.Point) float64 {
	var sum float64
	for _, pt := range pts {
		sum += ellipse.Distance(p, pt)
	}
	return sum / float64(len(pts))
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 0.01, cfg.Alpha)
	assert.Equal(t, 0.5, cfg.Beta)
	assert.Equal(t, 0.01, cfg.Gamma)
	assert.Equal(t, 1.0, cfg.WEdge)
	assert.Equal(t, 2500, cfg.MaxIterations)
	assert.Equal(t, 2.0, cfg.Sigma)
}

func TestRefine_ConvergesToDarkDisk(t *testing.T) {
	t.Parallel()

	pupil := ellipse.Circle(40, 40, 15)
	frame := testutil.PupilFrame(80, 80, pupil, 0, 1)
	seed := ellipse.SampleBoundary(ellipse.Circle(40, 40, 19), 100)

	got, err := NewSnake(DefaultConfig()).Refine(frame, seed)
	require.NoError(t, err)
	require.Len(t, got, len(seed))

	before := meanBoundaryDistance(pupil, seed)
	after := meanBoundaryDistance(pupil, got)
	assert.InDelta(t, 4.0, before, 1e-6)
	assert.Less(t, after, 2.0, "snake should settle near the disk edge")
}

func TestRefine_StaysOnEdge(t *testing.T) {
	t.Parallel()

	pupil := ellipse.Params{X: 40, Y: 35, A: 16, B: 11, Theta: 0.4}
	frame := testutil.PupilFrame(80, 70, pupil, 0, 1)
	seed := ellipse.SampleBoundary(pupil, 60)

	got, err := NewSnake(DefaultConfig()).Refine(frame, seed)
	require.NoError(t, err)
	assert.Less(t, meanBoundaryDistance(pupil, got), 1.5)
}

func TestRefine_UniformFrameShrinksAboutCentroid(t *testing.T) {
	t.Parallel()

	// With no external force only the internal energy acts: the closed
	// contour contracts while its centroid stays put.
	frame := mat.NewDense(60, 60, nil)
	circle := ellipse.Circle(30, 30, 12)
	cfg := DefaultConfig()
	cfg.MaxIterations = 20

	got, err := NewSnake(cfg).Refine(frame, ellipse.SampleBoundary(circle, 50))
	require.NoError(t, err)

	var cx, cy, radius float64
	for _, p := range got {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(got))
	cy /= float64(len(got))
	for _, p := range got {
		radius += math.Hypot(p.X-cx, p.Y-cy)
	}
	radius /= float64(len(got))

	assert.InDelta(t, 30.0, cx, 1e-6)
	assert.InDelta(t, 30.0, cy, 1e-6)
	assert.Less(t, radius, 12.0)
	assert.Greater(t, radius, 0.0)
}

func TestRefine_Errors(t *testing.T) {
	t.Parallel()

	s := NewSnake(DefaultConfig())
	_, err := s.Refine(nil, ellipse.SampleBoundary(ellipse.Circle(5, 5, 2), 10))
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = s.Refine(mat.NewDense(10, 10, nil), []ellipse.Point{{X: 1, Y: 1}, {X: 2, Y: 2}})
	assert.ErrorIs(t, err, ErrTooFewPoints)

	singular := NewSnake(Config{MaxIterations: 1})
	_, err = singular.Refine(mat.NewDense(10, 10, nil), ellipse.SampleBoundary(ellipse.Circle(5, 5, 2), 10))
	assert.ErrorIs(t, err, ErrSingularSystem)
}

func TestSystem_Pentadiagonal(t *testing.T) {
	t.Parallel()

	s := NewSnake(Config{Alpha: 0.1, Beta: 0.2, Gamma: 0.3})
	inv, err := s.system(6)
	require.NoError(t, err)

	var m mat.Dense
	m.Inverse(inv)
	// Diagonal 2a+6b+g, first off-diagonal -a-4b, second b, with wrap.
	assert.InDelta(t, 1.7, m.At(0, 0), 1e-9)
	assert.InDelta(t, -0.9, m.At(0, 1), 1e-9)
	assert.InDelta(t, -0.9, m.At(0, 5), 1e-9)
	assert.InDelta(t, 0.2, m.At(0, 2), 1e-9)
	assert.InDelta(t, 0.2, m.At(0, 4), 1e-9)
	assert.InDelta(t, 0.0, m.At(0, 3), 1e-9)
}

func TestBilinear(t *testing.T) {
	t.Parallel()

	m := mat.NewDense(2, 2, []float64{
		0, 1,
		2, 3,
	})
	assert.InDelta(t, 1.5, bilinear(m, 0.5, 0.5), 1e-12)
	assert.InDelta(t, 1.0, bilinear(m, 1, 0), 1e-12)
	assert.InDelta(t, 3.0, bilinear(m, 10, 10), 1e-12, "clamped to the last pixel")
	assert.InDelta(t, 0.0, bilinear(m, -5, -5), 1e-12)
	assert.Equal(t, 0.0, bilinear(m, math.NaN(), 0))
}
