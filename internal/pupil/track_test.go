package pupil

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
	"github.com/banshee-data/pupiltrack/internal/testutil"
)

type fitterFunc func([]ellipse.Point) (ellipse.Params, error)

func (f fitterFunc) Fit(points []ellipse.Point) (ellipse.Params, error) { return f(points) }

type stubRefiner struct {
	points  []ellipse.Point
	err     error
	seedLen int
}

func (r *stubRefiner) Refine(_ *mat.Dense, seed []ellipse.Point) ([]ellipse.Point, error) {
	r.seedLen = len(seed)
	return r.points, r.err
}

type stubDetector struct {
	points []ellipse.Point
	err    error
	calls  int
}

func (d *stubDetector) Detect(*mat.Dense) ([]ellipse.Point, error) {
	d.calls++
	return d.points, d.err
}

type recordingCollector struct {
	points    [][3]int
	failures  []string
	models    int
	qualities int
}

func (c *recordingCollector) IsEnabled() bool { return true }
func (c *recordingCollector) RecordPoints(_ string, contour, detector, augmented int) {
	c.points = append(c.points, [3]int{contour, detector, augmented})
}
func (c *recordingCollector) RecordCandidate(string, float64, float64, float64, float64, float64, float64) {
}
func (c *recordingCollector) RecordQuality(string, float64, float64, float64, float64) {
	c.qualities++
}
func (c *recordingCollector) RecordModel(string, float64, float64, float64, float64, float64, float64) {
	c.models++
}
func (c *recordingCollector) RecordFailure(_ string, reason string) {
	c.failures = append(c.failures, reason)
}

func newTestTrack(t *testing.T, cfg TrackConfig, collab Collaborators) *Track {
	t.Helper()
	return NewTrack(cfg, 50, 50, 20, collab)
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewTrack(t *testing.T) {
	t.Parallel()

	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{})
	assert.True(t, strings.HasPrefix(tr.ID, "trk_"))
	assert.Equal(t, ellipse.Circle(50, 50, 20), tr.CurrentModel())
	assert.Equal(t, ellipse.Circle(50, 50, 20), tr.ShortTermModel())
	assert.Equal(t, 10.0, tr.Tolerance())
	assert.Equal(t, 0, tr.FrameCount())
	assert.Empty(t, tr.FailedFrames())
	assert.Empty(t, tr.PupilDiameterHistory())
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestUpdate_ConvergingCircle(t *testing.T) {
	t.Parallel()

	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{})
	pts := testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100)
	for i := 0; i < 5; i++ {
		res := tr.Update(pts, nil)
		require.NoError(t, res.Err, "frame %d", i)
		assert.Equal(t, i, res.FrameIndex)
		assert.Equal(t, 100, res.Points)
	}

	testutil.AssertParamsNear(t, tr.CurrentModel(), ellipse.Circle(50, 50, 20), 1e-6)
	assert.Empty(t, tr.FailedFrames())
	assert.Equal(t, 5, tr.FrameCount())

	diams := tr.PupilDiameterHistory()
	require.Len(t, diams, 5)
	for _, d := range diams {
		assert.InDelta(t, 20.0, d, 1e-6)
	}
	assert.Len(t, tr.QualityHistory(), 5)
	assert.Len(t, tr.ParamHistory(), 5)
}

func TestUpdate_ZeroPointsFails(t *testing.T) {
	t.Parallel()

	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{})
	res := tr.Update(nil, nil)

	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, ErrNoPoints)
	assert.Equal(t, []int{0}, tr.FailedFrames())
	assert.True(t, tr.IsFailed(0))
	assert.Equal(t, ellipse.Circle(50, 50, 20), tr.CurrentModel())
	assert.Equal(t, []float64{0}, tr.QualityHistory())
	assert.Equal(t, []float64{20}, tr.PupilDiameterHistory())
	assert.Equal(t, []ellipse.Params{ellipse.Circle(50, 50, 20)}, tr.ParamHistory())

	// The next good frame recovers.
	res = tr.Update(testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100), nil)
	require.NoError(t, res.Err)
	assert.Equal(t, []int{0}, tr.FailedFrames())
	assert.Equal(t, 2, tr.FrameCount())
}

func TestUpdate_PointsOutsideToleranceFail(t *testing.T) {
	t.Parallel()

	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{})
	far := testutil.EllipsePoints(ellipse.Circle(200, 200, 20), 50)
	res := tr.Update(far, nil)

	assert.ErrorIs(t, res.Err, ErrNoPoints)
	assert.Equal(t, 0, res.Points)
}

func TestUpdate_DisplacedTargetConverges(t *testing.T) {
	t.Parallel()

	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{})
	target := ellipse.Circle(55, 50, 20)
	pts := testutil.EllipsePoints(target, 100)

	// With full quality every frame closes 80% of the remaining gap.
	wantErr := 5.0
	for i := 0; i < 4; i++ {
		res := tr.Update(pts, nil)
		require.NoError(t, res.Err, "frame %d", i)
		assert.InDelta(t, 1.0, res.Quality.ComboMult, 1e-6, "frame %d", i)
		wantErr *= 0.2
		assert.InDelta(t, 55-wantErr, tr.CurrentModel().X, 1e-6, "frame %d", i)
	}
	assert.InDelta(t, 20.0, tr.CurrentModel().A, 1e-6)
}

func TestUpdate_LargeJumpRejected(t *testing.T) {
	t.Parallel()

	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{})
	pts := testutil.EllipsePoints(ellipse.Circle(65, 50, 20), 200)
	res := tr.Update(pts, nil)

	require.NoError(t, res.Err)
	assert.InDelta(t, 65.0, tr.ShortTermModel().X, 1e-6)
	assert.InDelta(t, 50.0, tr.CurrentModel().X, 1e-6)
}

func TestUpdate_FitFailureCarriesModelForward(t *testing.T) {
	t.Parallel()

	boom := fmt.Errorf("%w: singular scatter matrix", ellipse.ErrFitFailed)
	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{
		Fitter: fitterFunc(func([]ellipse.Point) (ellipse.Params, error) { return ellipse.Params{}, boom }),
	})
	res := tr.Update(testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100), nil)

	assert.ErrorIs(t, res.Err, ellipse.ErrFitFailed)
	assert.Equal(t, 100, res.Points)
	assert.Equal(t, []int{0}, tr.FailedFrames())
	assert.Equal(t, ellipse.Circle(50, 50, 20), tr.CurrentModel())
}

func TestUpdate_DegenerateCandidateFails(t *testing.T) {
	t.Parallel()

	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{
		Fitter: fitterFunc(func([]ellipse.Point) (ellipse.Params, error) {
			return ellipse.Params{X: 50, Y: 50, A: 20, B: 0}, nil
		}),
	})
	res := tr.Update(testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100), nil)

	assert.ErrorIs(t, res.Err, ErrDegenerateModel)
	assert.Equal(t, ellipse.Circle(50, 50, 20), tr.CurrentModel())
}

func TestUpdate_DegenerateModelFails(t *testing.T) {
	t.Parallel()

	tr := NewTrack(DefaultTrackConfig(), 50, 50, 0, Collaborators{})
	res := tr.Update(testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100), nil)

	assert.ErrorIs(t, res.Err, ErrDegenerateModel)
	assert.Equal(t, []int{0}, tr.FailedFrames())
}

// ---------------------------------------------------------------------------
// Contour refinement
// ---------------------------------------------------------------------------

func TestUpdate_ContourPointsOnly(t *testing.T) {
	t.Parallel()

	refiner := &stubRefiner{points: testutil.EllipsePoints(ellipse.Circle(52, 50, 20), 100)}
	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{Refiner: refiner})
	res := tr.Update(nil, mat.NewDense(1, 1, nil))

	require.NoError(t, res.Err)
	assert.Equal(t, 100, refiner.seedLen)
	assert.Equal(t, 100, res.Points)
	assert.Greater(t, tr.CurrentModel().X, 50.0)
}

func TestUpdate_ContourSkippedWithoutFrame(t *testing.T) {
	t.Parallel()

	refiner := &stubRefiner{points: testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100)}
	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{Refiner: refiner})
	res := tr.Update(nil, nil)

	assert.ErrorIs(t, res.Err, ErrNoPoints)
	assert.Equal(t, 0, refiner.seedLen)
}

func TestUpdate_RefinerErrorContributesNothing(t *testing.T) {
	t.Parallel()

	refiner := &stubRefiner{
		points: testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100),
		err:    errors.New("snake diverged"),
	}
	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{Refiner: refiner})
	res := tr.Update(testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 30), mat.NewDense(1, 1, nil))

	require.NoError(t, res.Err)
	assert.Equal(t, 30, res.Points)
}

// ---------------------------------------------------------------------------
// Optional stages
// ---------------------------------------------------------------------------

func TestUpdate_AdaptiveWarmup(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackConfig()
	cfg.AdaptiveTolerance = true
	tr := newTestTrack(t, cfg, Collaborators{})
	tr.Update(testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100), nil)

	assert.Equal(t, 5.0, tr.Tolerance())
	assert.Equal(t, []float64{5}, tr.ToleranceHistory())
}

func TestUpdate_FixedToleranceNeverChanges(t *testing.T) {
	t.Parallel()

	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{})
	pts := testutil.NoisyEllipsePoints(ellipse.Circle(50, 50, 20), 100, 0.5, 3)
	for i := 0; i < 10; i++ {
		tr.Update(pts, nil)
	}
	for _, tol := range tr.ToleranceHistory() {
		assert.Equal(t, 10.0, tol)
	}
}

func TestUpdate_BacktrackToLongTerm(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackConfig()
	cfg.AdaptiveTolerance = true
	cfg.WarmupFrames = 100
	cfg.LongTermHistory = true
	cfg.LTRatio = 2
	cfg.Backtrack = true
	cfg.BacktrackTolerance = 5
	tr := newTestTrack(t, cfg, Collaborators{})
	pts := testutil.EllipsePoints(ellipse.Circle(54, 50, 20), 100)

	// Warm-up pins the tolerance at radius/4 = 5, the backtrack threshold,
	// but nothing happens until the long-term history has an entry.
	tr.Update(pts, nil)
	tr.Update(pts, nil)
	assert.Empty(t, tr.LongTermHistory())
	assert.Equal(t, 5.0, tr.Tolerance())

	tr.Update(pts, nil)
	lt := tr.LongTermHistory()
	require.Len(t, lt, 1)
	assert.InDelta(t, lt[0].X, tr.CurrentModel().X, 1e-9)
	assert.InDelta(t, lt[0].A, tr.CurrentModel().A, 1e-9)
	assert.Equal(t, cfg.InitialTolerance, tr.Tolerance())
}

func TestUpdate_AugmentPoints(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackConfig()
	cfg.AugmentPoints = true
	collector := &recordingCollector{}
	tr := newTestTrack(t, cfg, Collaborators{Debug: collector})
	circle := ellipse.Circle(50, 50, 20)

	tr.Update(testutil.EllipsePoints(circle, 100), nil)
	res := tr.Update(testutil.EllipsePoints(circle, 20), nil)

	require.NoError(t, res.Err)
	assert.Equal(t, 20, res.Points, "augmented points are not counted")
	require.Len(t, collector.points, 2)
	assert.Equal(t, 0, collector.points[0][2])
	// Mean count is 60, so (1 - 20/60) * 60 = 40 model points are added.
	assert.InDelta(t, 40, collector.points[1][2], 1)
}

// ---------------------------------------------------------------------------
// ProcessFrame and instrumentation
// ---------------------------------------------------------------------------

func TestProcessFrame(t *testing.T) {
	t.Parallel()

	det := &stubDetector{points: testutil.EllipsePoints(ellipse.Circle(51, 50, 20), 100)}
	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{Detector: det})
	res := tr.ProcessFrame(mat.NewDense(4, 4, nil))

	require.NoError(t, res.Err)
	assert.Equal(t, 1, det.calls)
	assert.Greater(t, tr.CurrentModel().X, 50.0)
}

func TestProcessFrame_DetectorError(t *testing.T) {
	t.Parallel()

	det := &stubDetector{err: errors.New("bad frame")}
	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{Detector: det})
	res := tr.ProcessFrame(mat.NewDense(4, 4, nil))

	assert.ErrorIs(t, res.Err, ErrNoPoints)
	assert.Equal(t, []int{0}, tr.FailedFrames())
}

func TestUpdate_DebugCollector(t *testing.T) {
	t.Parallel()

	collector := &recordingCollector{}
	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{Debug: collector})
	tr.Update(testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100), nil)
	tr.Update(nil, nil)

	assert.Equal(t, [][3]int{{0, 100, 0}}, collector.points)
	assert.Equal(t, 1, collector.qualities)
	assert.Equal(t, 2, collector.models)
	require.Len(t, collector.failures, 1)
	assert.Contains(t, collector.failures[0], ErrNoPoints.Error())
}

func TestTrack_ConcurrentReads(t *testing.T) {
	t.Parallel()

	tr := newTestTrack(t, DefaultTrackConfig(), Collaborators{})
	pts := testutil.EllipsePoints(ellipse.Circle(50, 50, 20), 100)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			tr.Update(pts, nil)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_ = tr.CurrentModel()
			_ = tr.PupilDiameterHistory()
			_ = tr.FailedFrames()
		}
	}()
	wg.Wait()
	assert.Equal(t, 20, tr.FrameCount())
}
