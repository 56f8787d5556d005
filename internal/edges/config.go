package edges

import (
	"image"

	"github.com/banshee-data/pupiltrack/internal/config"
)

// Config holds the preprocessing and edge-detection parameters.
// Intensities are fractions of full scale: the detector expects frames in
// [0, 1].
type Config struct {
	SigCutoff     float64         // Sigmoid contrast midpoint
	SigGain       float64         // Sigmoid contrast slope
	CannySigma    float64         // Gaussian blur applied before gradients
	CannyHigh     float64         // Canny hysteresis high threshold
	CannyLow      float64         // Canny hysteresis low threshold
	ClosingRadius int             // Grayscale closing radius in pixels; 0 disables
	ROI           image.Rectangle // Crop applied before processing; empty means the whole frame
}

// DefaultConfig returns edge configuration loaded from the canonical
// tuning defaults file (config/tuning.defaults.json).
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		SigCutoff:     cfg.GetSigCutoff(),
		SigGain:       cfg.GetSigGain(),
		CannySigma:    cfg.GetCannySigma(),
		CannyHigh:     cfg.GetCannyHigh(),
		CannyLow:      cfg.GetCannyLow(),
		ClosingRadius: cfg.GetClosingRadius(),
		ROI:           cfg.GetROI(),
	}
}
