package pipeline

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pupiltrack/internal/edges"
	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

// boundarySamples is the number of points sampled along a model's boundary
// when measuring edge magnitude.
const boundarySamples = 100

// FrameScore rates a track's model against the frame it was updated with.
type FrameScore struct {
	FrameIndex        int
	Coverage          float64 // Retained points per unit of model perimeter
	BoundaryMagnitude float64 // Mean edge magnitude along the model boundary; 0 without an image
}

// Scorer computes FrameScores. A nil Analyzer scores coverage only.
type Scorer struct {
	Analyzer *edges.Detector
}

// Score rates model given the number of points it was fitted to and the
// frame image, which may be nil.
func (s Scorer) Score(frameIndex int, model ellipse.Params, points int, img *mat.Dense) FrameScore {
	score := FrameScore{
		FrameIndex: frameIndex,
		Coverage:   ellipse.Coverage(model, points),
	}
	if s.Analyzer == nil || img == nil {
		return score
	}
	res, err := s.Analyzer.Analyze(img)
	if err != nil {
		diagf("frame %d: scoring skipped: %v", frameIndex, err)
		return score
	}
	// The magnitude map covers the cropped region only.
	local := model
	local.X -= float64(res.Offset.X)
	local.Y -= float64(res.Offset.Y)
	score.BoundaryMagnitude = edges.MeanBoundaryMagnitude(res.Magnitude, local, boundarySamples)
	return score
}
