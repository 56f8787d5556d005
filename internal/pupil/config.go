package pupil

import (
	"github.com/banshee-data/pupiltrack/internal/config"
)

// TrackConfig holds the per-track tuning parameters.
type TrackConfig struct {
	ShortTermMemory  int     // Capacity of each per-parameter history
	LTRatio          int     // Frames between long-term history stashes
	WarmupFrames     int     // Frames before the tolerance starts adapting
	EWMHalfLife      float64 // Half-life (frames) of the parameter stdev
	InitialTolerance float64 // Starting point-filter tolerance (pixels)
	MaxTolerance     float64 // Tolerance ceiling
	MaxParamJump     float64 // Per-frame change above which an update is rejected
	BlendGain        float64 // Fraction of the weighted delta applied per frame
	ContourPoints    int     // Seed points for contour refinement; 0 disables it

	// Optional update-loop stages. All default to off: the adaptive
	// tolerance and backtracking have not been validated on real video.
	AdaptiveTolerance  bool
	LongTermHistory    bool
	Backtrack          bool
	BacktrackTolerance float64
	AugmentPoints      bool
}

// DefaultTrackConfig returns track configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found, intended for tests and binaries
// that have already validated config availability.
func DefaultTrackConfig() TrackConfig {
	return TrackConfigFromTuning(config.MustLoadDefaultConfig())
}

// TrackConfigFromTuning builds a TrackConfig from a loaded TuningConfig.
func TrackConfigFromTuning(cfg *config.TuningConfig) TrackConfig {
	return TrackConfig{
		ShortTermMemory:    cfg.GetShortTermMemory(),
		LTRatio:            cfg.GetLTRatio(),
		WarmupFrames:       cfg.GetWarmupFrames(),
		EWMHalfLife:        cfg.GetEWMHalfLife(),
		InitialTolerance:   cfg.GetInitialTolerance(),
		MaxTolerance:       cfg.GetMaxTolerance(),
		MaxParamJump:       cfg.GetMaxParamJump(),
		BlendGain:          cfg.GetBlendGain(),
		ContourPoints:      cfg.GetContourPoints(),
		AdaptiveTolerance:  cfg.GetToleranceMode() == config.ToleranceModeAdaptive,
		LongTermHistory:    cfg.GetLongTermHistory(),
		Backtrack:          cfg.GetBacktrack(),
		BacktrackTolerance: cfg.GetBacktrackTolerance(),
		AugmentPoints:      cfg.GetAugmentPoints(),
	}
}
