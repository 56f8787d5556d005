package pupil

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
	"github.com/banshee-data/pupiltrack/internal/monitoring"
)

var (
	// ErrDegenerateModel is reported when the model or a candidate fit has
	// a non-finite parameter or an axis below MinAxis.
	ErrDegenerateModel = errors.New("degenerate ellipse model")
	// ErrNoPoints is reported when no points survive filtering.
	ErrNoPoints = errors.New("no points within tolerance")
)

// EdgeDetector extracts candidate boundary points from a frame.
type EdgeDetector interface {
	Detect(frame *mat.Dense) ([]ellipse.Point, error)
}

// ContourRefiner pulls seed points onto nearby image edges.
type ContourRefiner interface {
	Refine(frame *mat.Dense, seed []ellipse.Point) ([]ellipse.Point, error)
}

// DebugCollector interface for tracker instrumentation.
// Allows decoupling from the debug package to avoid circular dependencies.
type DebugCollector interface {
	IsEnabled() bool
	RecordPoints(trackID string, contour, detector, augmented int)
	RecordCandidate(trackID string, x, y, a, b, theta, residual float64)
	RecordQuality(trackID string, pointMult, residualMult, oblongity, comboMult float64)
	RecordModel(trackID string, x, y, a, b, theta, tolerance float64)
	RecordFailure(trackID string, reason string)
}

// Collaborators are the external stages a Track drives each frame.
// A nil Fitter uses ellipse.LeastSquaresFitter. A nil Refiner skips contour
// refinement and a nil Detector makes ProcessFrame rely on the refiner.
type Collaborators struct {
	Fitter   ellipse.Fitter
	Refiner  ContourRefiner
	Detector EdgeDetector
	Debug    DebugCollector
}

// FrameResult summarises one call to Update.
type FrameResult struct {
	FrameIndex int
	Model      ellipse.Params
	Quality    Quality
	Tolerance  float64
	Points     int
	Err        error // Why the frame failed, nil on success
}

// Failed reports whether the frame was recorded as a failure.
func (r FrameResult) Failed() bool { return r.Err != nil }

// Track follows a single pupil across a sequence of frames.
type Track struct {
	ID string

	cfg           TrackConfig
	collab        Collaborators
	blender       Blender
	initialRadius float64
	logf          func(format string, v ...interface{})

	model     ellipse.Params // Smoothed estimate
	shortTerm ellipse.Params // Most recent raw fit
	history   *HistoryStore

	pointCounts *RingBuffer
	residuals   *RingBuffer

	qualityMults   []float64
	pupilDiameters []float64
	tolerances     []float64
	lastQuality    Quality

	tolerance    float64
	frameCounter int

	mu sync.Mutex
}

// NewTrack creates a track seeded with a circle of the given radius.
func NewTrack(cfg TrackConfig, x, y, radius float64, collab Collaborators) *Track {
	if collab.Fitter == nil {
		collab.Fitter = ellipse.LeastSquaresFitter{}
	}
	seed := ellipse.Circle(x, y, radius)
	id := fmt.Sprintf("trk_%s", uuid.NewString())
	return &Track{
		ID:            id,
		cfg:           cfg,
		collab:        collab,
		blender:       Blender{MaxJump: cfg.MaxParamJump, Gain: cfg.BlendGain},
		initialRadius: radius,
		logf:          monitoring.TrackLogf(id),
		model:         seed,
		shortTerm:     seed,
		history:       NewHistoryStore(cfg.ShortTermMemory, cfg.LTRatio, cfg.LongTermHistory, seed),
		pointCounts:   NewRingBuffer(cfg.ShortTermMemory),
		residuals:     NewRingBuffer(cfg.ShortTermMemory),
		tolerance:     cfg.InitialTolerance,
	}
}

// ProcessFrame runs the edge detector on frame and feeds the result to
// Update. A detector error is logged and the frame proceeds with the
// contour points alone.
func (t *Track) ProcessFrame(frame *mat.Dense) FrameResult {
	var points []ellipse.Point
	if t.collab.Detector != nil && frame != nil {
		detected, err := t.collab.Detector.Detect(frame)
		if err != nil {
			opsf("track %s: edge detection failed: %v", t.ID, err)
		} else {
			points = detected
		}
	}
	return t.Update(points, frame)
}

// Update advances the track by one frame using the detected edge points
// and, when a refiner is configured, the frame itself. Frames must be
// supplied in order.
func (t *Track) Update(points []ellipse.Point, frame *mat.Dense) FrameResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	frameIndex := t.frameCounter
	t.frameCounter++

	if !t.model.Valid(MinAxis) {
		return t.fail(frameIndex, 0, fmt.Errorf("%w: model %s", ErrDegenerateModel, t.model))
	}

	contourPts := t.contourPoints(frame)
	detectorPts := FilterPoints(points, t.model, t.tolerance)
	combined := make([]ellipse.Point, 0, len(contourPts)+len(detectorPts))
	combined = append(combined, contourPts...)
	combined = append(combined, detectorPts...)

	count := len(combined)
	t.pointCounts.Add(float64(count))
	if count == 0 {
		return t.fail(frameIndex, 0, ErrNoPoints)
	}

	fitPts := combined
	if t.cfg.AugmentPoints {
		fitPts = t.augment(combined)
	}
	if t.debugEnabled() {
		t.collab.Debug.RecordPoints(t.ID, len(contourPts), len(detectorPts), len(fitPts)-count)
	}

	residual := ellipse.MeanSquaredResidual(t.model, combined)
	t.residuals.Add(residual)

	cand, err := t.collab.Fitter.Fit(fitPts)
	if err != nil {
		return t.fail(frameIndex, count, err)
	}
	if !cand.Valid(MinAxis) {
		return t.fail(frameIndex, count, fmt.Errorf("%w: candidate %s", ErrDegenerateModel, cand))
	}
	t.shortTerm = cand
	if t.debugEnabled() {
		t.collab.Debug.RecordCandidate(t.ID, cand.X, cand.Y, cand.A, cand.B, cand.Theta, residual)
	}

	q := ScoreQuality(QualityInput{
		PointCount:     float64(count),
		MeanPointCount: t.pointCounts.Mean(),
		Residual:       residual,
		MeanResidual:   t.residuals.Mean(),
		Candidate:      cand,
		FitOK:          true,
	})
	t.lastQuality = q
	if t.debugEnabled() {
		t.collab.Debug.RecordQuality(t.ID, q.PointMult, q.ResidualMult, q.Oblongity, q.ComboMult)
	}

	t.model = t.blender.Blend(t.model, cand, q.ComboMult)
	t.qualityMults = append(t.qualityMults, q.ComboMult)
	t.pupilDiameters = append(t.pupilDiameters, t.model.Diameter())
	t.history.Stash(frameIndex, t.model, true)

	if t.cfg.AdaptiveTolerance {
		t.adaptTolerance(frameIndex, float64(count), residual)
	}
	if t.cfg.Backtrack {
		t.backtrack(frameIndex)
	}
	t.tolerances = append(t.tolerances, t.tolerance)

	tracef("track %s frame %d: %d points, residual %.4f, %s, model %s, tolerance %.3f",
		t.ID, frameIndex, count, residual, q, t.model, t.tolerance)
	if t.debugEnabled() {
		t.recordModel()
	}

	return FrameResult{
		FrameIndex: frameIndex,
		Model:      t.model,
		Quality:    q,
		Tolerance:  t.tolerance,
		Points:     count,
	}
}

// fail records frameIndex as a failed frame: the model is carried forward
// unchanged and the histories duplicate their previous entries.
func (t *Track) fail(frameIndex, count int, reason error) FrameResult {
	t.history.Stash(frameIndex, t.model, false)
	t.qualityMults = append(t.qualityMults, 0)
	t.pupilDiameters = append(t.pupilDiameters, t.model.Diameter())
	t.tolerances = append(t.tolerances, t.tolerance)
	t.lastQuality = Quality{}

	diagf("track %s frame %d failed: %v", t.ID, frameIndex, reason)
	if t.debugEnabled() {
		t.collab.Debug.RecordFailure(t.ID, reason.Error())
		t.recordModel()
	}

	return FrameResult{
		FrameIndex: frameIndex,
		Model:      t.model,
		Tolerance:  t.tolerance,
		Points:     count,
		Err:        reason,
	}
}

// contourPoints refines a boundary sampled from the current model and
// keeps the refined points within tolerance.
func (t *Track) contourPoints(frame *mat.Dense) []ellipse.Point {
	if t.collab.Refiner == nil || frame == nil || t.cfg.ContourPoints <= 0 {
		return nil
	}
	seed := ellipse.SampleBoundary(t.model, t.cfg.ContourPoints)
	refined, err := t.collab.Refiner.Refine(frame, seed)
	if err != nil {
		opsf("track %s: contour refinement failed: %v", t.ID, err)
		return nil
	}
	return FilterPoints(refined, t.model, t.tolerance)
}

// augment pads a sparse point set with points predicted by the current
// model so that the fit leans on the model when a frame is poor.
func (t *Track) augment(points []ellipse.Point) []ellipse.Point {
	mean := t.pointCounts.Mean()
	n := float64(len(points))
	if mean <= 0 {
		return points
	}
	modelPts := int((1 - n/mean) * mean)
	if modelPts <= 0 {
		return points
	}
	out := make([]ellipse.Point, 0, len(points)+modelPts)
	out = append(out, points...)
	return append(out, ellipse.SampleBoundary(t.model, modelPts)...)
}

func (t *Track) adaptTolerance(frameIndex int, count, residual float64) {
	var series [4][]float64
	for i := range series {
		series[i] = t.history.Series(i)
	}
	prev := t.tolerance
	t.tolerance = AdaptTolerance(ToleranceInput{
		FrameIndex:     frameIndex,
		WarmupFrames:   t.cfg.WarmupFrames,
		InitialRadius:  t.initialRadius,
		MaxTolerance:   t.cfg.MaxTolerance,
		HalfLife:       t.cfg.EWMHalfLife,
		Series:         series,
		PointCount:     count,
		MeanPointCount: t.pointCounts.Mean(),
		Residual:       residual,
		MeanResidual:   t.residuals.Mean(),
	})
	if t.tolerance != prev {
		diagf("track %s frame %d: tolerance %.3f -> %.3f", t.ID, frameIndex, prev, t.tolerance)
	}
}

// backtrack resets a track that has lost the pupil to its most recent
// long-term estimate.
func (t *Track) backtrack(frameIndex int) {
	if t.tolerance < t.cfg.BacktrackTolerance {
		return
	}
	lt, ok := t.history.LatestLongTerm()
	if !ok {
		return
	}
	t.model = ellipse.Params{X: lt.X, Y: lt.Y, A: lt.A, B: lt.B, Theta: t.model.Theta}
	t.tolerance = t.cfg.InitialTolerance
	t.logf("frame %d: tolerance at ceiling, backtracked to %s", frameIndex, t.model)
}

func (t *Track) debugEnabled() bool {
	return t.collab.Debug != nil && t.collab.Debug.IsEnabled()
}

func (t *Track) recordModel() {
	m := t.model
	t.collab.Debug.RecordModel(t.ID, m.X, m.Y, m.A, m.B, m.Theta, t.tolerance)
}

// CurrentModel returns the smoothed ellipse estimate.
func (t *Track) CurrentModel() ellipse.Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.model
}

// ShortTermModel returns the most recent successful raw fit.
func (t *Track) ShortTermModel() ellipse.Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shortTerm
}

// PupilDiameterHistory returns max(a, b) of the model after every frame.
func (t *Track) PupilDiameterHistory() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.pupilDiameters...)
}

// FailedFrames returns the indices of frames whose update failed, ascending.
func (t *Track) FailedFrames() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.FailedFrames()
}

// IsFailed reports whether frame frameIndex failed.
func (t *Track) IsFailed(frameIndex int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.IsFailed(frameIndex)
}

// Tolerance returns the current point-filter tolerance.
func (t *Track) Tolerance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tolerance
}

// ToleranceHistory returns the tolerance in effect after every frame.
func (t *Track) ToleranceHistory() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.tolerances...)
}

// FrameCount returns the number of frames processed.
func (t *Track) FrameCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameCounter
}

// QualityHistory returns the combined quality multiplier of every frame.
// Failed frames score 0.
func (t *Track) QualityHistory() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.qualityMults...)
}

// LastQuality returns the quality breakdown of the most recent frame.
func (t *Track) LastQuality() Quality {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastQuality
}

// ParamHistory returns the short-term model history, oldest first.
func (t *Track) ParamHistory() []ellipse.Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.ShortTerm()
}

// LongTermHistory returns the long-term model history, oldest first.
func (t *Track) LongTermHistory() []ellipse.Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.LongTerm()
}
