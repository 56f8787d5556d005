// Package debug provides instrumentation for the pupil tracker.
// The DebugCollector captures per-frame internals (point counts, raw fits,
// quality multipliers, failures) for offline inspection and tuning.
package debug

import (
	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

// DebugCollector accumulates debug artifacts for one track, one frame at a
// time. When enabled, it records the tracker's per-frame decisions.
//
// The collector is stateful: call BeginFrame before the track's Update,
// then Emit once it returns to extract the artifacts.
type DebugCollector struct {
	enabled bool
	current *DebugFrame
}

// DebugFrame contains all debug artifacts for a single frame of one track.
type DebugFrame struct {
	FrameIndex int
	TrackID    string

	// Point stage: how many points each source contributed
	ContourPoints   int
	DetectorPoints  int
	AugmentedPoints int

	// Fit stage: the raw candidate and its residual against the prior model
	Candidate *ellipse.Params
	Residual  float64

	// Quality stage: the multipliers that weighted the blend
	Quality *QualityRecord

	// Model after the update, and the tolerance for the next frame
	Model     ellipse.Params
	Tolerance float64

	// Failure reason, empty on success
	Failure string

	// Score of the updated model against the frame, nil unless scored
	Score *ScoreRecord
}

// ScoreRecord rates how well the model explains the frame's evidence.
type ScoreRecord struct {
	Coverage          float64 // Retained points per unit of perimeter
	BoundaryMagnitude float64 // Mean edge magnitude along the model boundary
}

// QualityRecord captures the quality multipliers of one frame.
type QualityRecord struct {
	PointMult    float64
	ResidualMult float64
	Oblongity    float64
	ComboMult    float64
}

// Failed reports whether the frame was recorded as a failure.
func (f *DebugFrame) Failed() bool { return f.Failure != "" }

// NewDebugCollector creates a collector that's initially disabled.
// Call SetEnabled(true) to begin collecting artifacts.
func NewDebugCollector() *DebugCollector {
	return &DebugCollector{}
}

// SetEnabled controls whether the collector records artifacts.
// When disabled, all Record*() calls are no-ops.
func (c *DebugCollector) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// IsEnabled returns true if the collector is actively recording.
func (c *DebugCollector) IsEnabled() bool {
	return c.enabled
}

// BeginFrame initialises collection for a new frame.
// Must be called before any Record*() calls.
func (c *DebugCollector) BeginFrame(frameIndex int) {
	if !c.enabled {
		return
	}
	c.current = &DebugFrame{FrameIndex: frameIndex}
}

// RecordPoints captures how many points survived filtering from each source
// and how many model points were added.
func (c *DebugCollector) RecordPoints(trackID string, contour, detector, augmented int) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.TrackID = trackID
	c.current.ContourPoints = contour
	c.current.DetectorPoints = detector
	c.current.AugmentedPoints = augmented
}

// RecordCandidate captures the raw fit and the residual of the retained
// points against the model it is about to update.
func (c *DebugCollector) RecordCandidate(trackID string, x, y, a, b, theta, residual float64) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.TrackID = trackID
	c.current.Candidate = &ellipse.Params{X: x, Y: y, A: a, B: b, Theta: theta}
	c.current.Residual = residual
}

// RecordQuality captures the quality multipliers.
func (c *DebugCollector) RecordQuality(trackID string, pointMult, residualMult, oblongity, comboMult float64) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.TrackID = trackID
	c.current.Quality = &QualityRecord{
		PointMult:    pointMult,
		ResidualMult: residualMult,
		Oblongity:    oblongity,
		ComboMult:    comboMult,
	}
}

// RecordModel captures the model and tolerance at the end of the frame.
func (c *DebugCollector) RecordModel(trackID string, x, y, a, b, theta, tolerance float64) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.TrackID = trackID
	c.current.Model = ellipse.Params{X: x, Y: y, A: a, B: b, Theta: theta}
	c.current.Tolerance = tolerance
}

// RecordFailure captures why the frame was rejected.
func (c *DebugCollector) RecordFailure(trackID string, reason string) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.TrackID = trackID
	c.current.Failure = reason
}

// RecordScore captures the model score computed after the update.
func (c *DebugCollector) RecordScore(coverage, boundaryMagnitude float64) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Score = &ScoreRecord{Coverage: coverage, BoundaryMagnitude: boundaryMagnitude}
}

// Emit returns the accumulated debug frame and prepares for the next frame.
// Returns nil if collection is disabled or no frame was begun.
func (c *DebugCollector) Emit() *DebugFrame {
	if !c.enabled || c.current == nil {
		return nil
	}
	frame := c.current
	c.current = nil
	return frame
}

// Reset clears any pending artifacts without emitting them.
func (c *DebugCollector) Reset() {
	c.current = nil
}
