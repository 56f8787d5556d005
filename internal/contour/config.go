package contour

import (
	"github.com/banshee-data/pupiltrack/internal/config"
)

// MaxPixelMove caps how far a snake point moves in one iteration.
const MaxPixelMove = 1.0

// convergenceOrder is the number of past snakes compared when testing for
// convergence.
const convergenceOrder = 10

// Config holds the active contour parameters.
type Config struct {
	Alpha         float64 // Length (elasticity) weight
	Beta          float64 // Smoothness (rigidity) weight
	Gamma         float64 // Explicit time step
	WLine         float64 // Attraction to brightness
	WEdge         float64 // Attraction to edges
	MaxIterations int
	Convergence   float64 // Stop once no point has moved further than this
	Sigma         float64 // Gaussian smoothing of the frame before iterating
}

// DefaultConfig returns contour configuration loaded from the canonical
// tuning defaults file (config/tuning.defaults.json).
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Alpha:         cfg.GetSnakeAlpha(),
		Beta:          cfg.GetSnakeBeta(),
		Gamma:         cfg.GetSnakeGamma(),
		WLine:         cfg.GetSnakeWLine(),
		WEdge:         cfg.GetSnakeWEdge(),
		MaxIterations: cfg.GetSnakeMaxIterations(),
		Convergence:   cfg.GetSnakeConvergence(),
		Sigma:         cfg.GetSnakeSigma(),
	}
}
