// Package pupil owns the per-track pupil model: the adaptive state machine
// that turns noisy edge points into a smoothed ellipse estimate, one frame
// at a time.
//
// Responsibilities: point filtering against the current model, per-frame
// quality scoring, confidence-weighted parameter blending, adaptive filter
// tolerance, and bounded parameter history.
// Key types: Track, HistoryStore, RingBuffer.
//
// Edge detection, contour refinement and ellipse fitting are consumed
// through the EdgeDetector, ContourRefiner and ellipse.Fitter interfaces.
// No image-library (cgo) code is allowed in this package.
package pupil
