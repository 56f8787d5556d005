package config

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Tolerance modes. The adaptive recomputation is available but not the
// validated default; see ToleranceMode.
const (
	ToleranceModeFixed    = "fixed"
	ToleranceModeAdaptive = "adaptive"
)

// TuningConfig represents the root configuration for tracker and image
// pipeline parameters. Every field is optional: nil means "use the
// built-in default" returned by the matching Get* accessor.
type TuningConfig struct {
	// Track memory
	ShortTermMemory *int     `json:"short_term_memory,omitempty"`
	LTRatio         *int     `json:"lt_ratio,omitempty"`
	WarmupFrames    *int     `json:"warmup_frames,omitempty"`
	EWMHalfLife     *float64 `json:"ewm_half_life,omitempty"`

	// Point filter and blending
	InitialTolerance *float64 `json:"initial_tolerance,omitempty"`
	MaxTolerance     *float64 `json:"max_tolerance,omitempty"`
	MaxParamJump     *float64 `json:"max_param_jump,omitempty"`
	BlendGain        *float64 `json:"blend_gain,omitempty"`
	ContourPoints    *int     `json:"contour_points,omitempty"`

	// Optional update-loop stages
	ToleranceMode      *string  `json:"tolerance_mode,omitempty"` // "fixed" or "adaptive"
	LongTermHistory    *bool    `json:"long_term_history,omitempty"`
	Backtrack          *bool    `json:"backtrack,omitempty"`
	BacktrackTolerance *float64 `json:"backtrack_tolerance,omitempty"`
	AugmentPoints      *bool    `json:"augment_points,omitempty"`

	// Active contour
	SnakeAlpha         *float64 `json:"snake_alpha,omitempty"`
	SnakeBeta          *float64 `json:"snake_beta,omitempty"`
	SnakeGamma         *float64 `json:"snake_gamma,omitempty"`
	SnakeWLine         *float64 `json:"snake_w_line,omitempty"`
	SnakeWEdge         *float64 `json:"snake_w_edge,omitempty"`
	SnakeMaxIterations *int     `json:"snake_max_iterations,omitempty"`
	SnakeConvergence   *float64 `json:"snake_convergence,omitempty"`
	SnakeSigma         *float64 `json:"snake_sigma,omitempty"`

	// Image preprocessing and edge detection
	SigCutoff     *float64 `json:"sig_cutoff,omitempty"`
	SigGain       *float64 `json:"sig_gain,omitempty"`
	CannySigma    *float64 `json:"canny_sigma,omitempty"`
	CannyHigh     *float64 `json:"canny_high,omitempty"`
	CannyLow      *float64 `json:"canny_low,omitempty"`
	ClosingRadius *int     `json:"closing_radius,omitempty"`
	ROI           []int    `json:"roi,omitempty"` // [x, y, width, height]
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ShortTermMemory != nil && *c.ShortTermMemory < 1 {
		return fmt.Errorf("short_term_memory must be at least 1, got %d", *c.ShortTermMemory)
	}
	if c.LTRatio != nil && *c.LTRatio < 1 {
		return fmt.Errorf("lt_ratio must be at least 1, got %d", *c.LTRatio)
	}
	if c.LTRatio != nil && c.ShortTermMemory != nil && *c.LTRatio > *c.ShortTermMemory {
		return fmt.Errorf("lt_ratio (%d) must not exceed short_term_memory (%d)", *c.LTRatio, *c.ShortTermMemory)
	}
	if c.WarmupFrames != nil && *c.WarmupFrames < 0 {
		return fmt.Errorf("warmup_frames must be non-negative, got %d", *c.WarmupFrames)
	}
	if c.EWMHalfLife != nil && *c.EWMHalfLife <= 0 {
		return fmt.Errorf("ewm_half_life must be positive, got %f", *c.EWMHalfLife)
	}
	if c.MaxTolerance != nil && *c.MaxTolerance <= 0 {
		return fmt.Errorf("max_tolerance must be positive, got %f", *c.MaxTolerance)
	}
	if c.InitialTolerance != nil {
		if *c.InitialTolerance < 0 || *c.InitialTolerance > c.GetMaxTolerance() {
			return fmt.Errorf("initial_tolerance must be between 0 and %g, got %f", c.GetMaxTolerance(), *c.InitialTolerance)
		}
	}
	if c.MaxParamJump != nil && *c.MaxParamJump <= 0 {
		return fmt.Errorf("max_param_jump must be positive, got %f", *c.MaxParamJump)
	}
	if c.BlendGain != nil && (*c.BlendGain < 0 || *c.BlendGain > 1) {
		return fmt.Errorf("blend_gain must be between 0 and 1, got %f", *c.BlendGain)
	}
	if c.ContourPoints != nil && *c.ContourPoints < 0 {
		return fmt.Errorf("contour_points must be non-negative, got %d", *c.ContourPoints)
	}
	if c.ToleranceMode != nil {
		switch *c.ToleranceMode {
		case ToleranceModeFixed, ToleranceModeAdaptive:
		default:
			return fmt.Errorf("tolerance_mode must be %q or %q, got %q", ToleranceModeFixed, ToleranceModeAdaptive, *c.ToleranceMode)
		}
	}
	if c.SnakeMaxIterations != nil && *c.SnakeMaxIterations < 1 {
		return fmt.Errorf("snake_max_iterations must be at least 1, got %d", *c.SnakeMaxIterations)
	}
	if c.SnakeGamma != nil && *c.SnakeGamma <= 0 {
		return fmt.Errorf("snake_gamma must be positive, got %f", *c.SnakeGamma)
	}
	if c.SigCutoff != nil && (*c.SigCutoff < 0 || *c.SigCutoff > 1) {
		return fmt.Errorf("sig_cutoff must be between 0 and 1, got %f", *c.SigCutoff)
	}
	if c.CannyLow != nil && c.CannyHigh != nil && *c.CannyLow > *c.CannyHigh {
		return fmt.Errorf("canny_low (%f) must not exceed canny_high (%f)", *c.CannyLow, *c.CannyHigh)
	}
	if c.ClosingRadius != nil && *c.ClosingRadius < 0 {
		return fmt.Errorf("closing_radius must be non-negative, got %d", *c.ClosingRadius)
	}
	if c.ROI != nil {
		if len(c.ROI) != 4 {
			return fmt.Errorf("roi must have 4 elements [x, y, width, height], got %d", len(c.ROI))
		}
		if c.ROI[0] < 0 || c.ROI[1] < 0 || c.ROI[2] <= 0 || c.ROI[3] <= 0 {
			return fmt.Errorf("roi must have non-negative origin and positive size, got %v", c.ROI)
		}
	}
	return nil
}

// GetShortTermMemory returns the per-parameter history capacity.
func (c *TuningConfig) GetShortTermMemory() int {
	if c.ShortTermMemory == nil {
		return 100
	}
	return *c.ShortTermMemory
}

// GetLTRatio returns how many frames pass between long-term history stashes.
func (c *TuningConfig) GetLTRatio() int {
	if c.LTRatio == nil {
		return 10
	}
	return *c.LTRatio
}

// GetWarmupFrames returns the number of frames the tolerance stays at its
// warm-up fallback before adapting.
func (c *TuningConfig) GetWarmupFrames() int {
	if c.WarmupFrames == nil {
		return 50
	}
	return *c.WarmupFrames
}

// GetEWMHalfLife returns the half-life (frames) of the exponentially
// weighted parameter standard deviation.
func (c *TuningConfig) GetEWMHalfLife() float64 {
	if c.EWMHalfLife == nil {
		return 10
	}
	return *c.EWMHalfLife
}

// GetInitialTolerance returns the starting point-filter tolerance (pixels).
func (c *TuningConfig) GetInitialTolerance() float64 {
	if c.InitialTolerance == nil {
		return 10
	}
	return *c.InitialTolerance
}

// GetMaxTolerance returns the tolerance ceiling.
func (c *TuningConfig) GetMaxTolerance() float64 {
	if c.MaxTolerance == nil {
		return 20
	}
	return *c.MaxTolerance
}

// GetMaxParamJump returns the per-frame parameter change above which an
// update for that parameter is rejected.
func (c *TuningConfig) GetMaxParamJump() float64 {
	if c.MaxParamJump == nil {
		return 10
	}
	return *c.MaxParamJump
}

// GetBlendGain returns the fraction of the confidence-weighted delta applied
// per frame.
func (c *TuningConfig) GetBlendGain() float64 {
	if c.BlendGain == nil {
		return 0.8
	}
	return *c.BlendGain
}

// GetContourPoints returns the number of seed points for contour refinement.
// Zero disables the contour stage.
func (c *TuningConfig) GetContourPoints() int {
	if c.ContourPoints == nil {
		return 100
	}
	return *c.ContourPoints
}

// GetToleranceMode returns "fixed" (default) or "adaptive".
func (c *TuningConfig) GetToleranceMode() string {
	if c.ToleranceMode == nil || *c.ToleranceMode == "" {
		return ToleranceModeFixed
	}
	return *c.ToleranceMode
}

// GetLongTermHistory reports whether long-term history aggregation is enabled.
func (c *TuningConfig) GetLongTermHistory() bool {
	if c.LongTermHistory == nil {
		return false
	}
	return *c.LongTermHistory
}

// GetBacktrack reports whether the high-tolerance backtrack safeguard is enabled.
func (c *TuningConfig) GetBacktrack() bool {
	if c.Backtrack == nil {
		return false
	}
	return *c.Backtrack
}

// GetBacktrackTolerance returns the tolerance at which the backtrack
// safeguard fires. Defaults to the tolerance ceiling.
func (c *TuningConfig) GetBacktrackTolerance() float64 {
	if c.BacktrackTolerance == nil {
		return c.GetMaxTolerance()
	}
	return *c.BacktrackTolerance
}

// GetAugmentPoints reports whether sparse frames are padded with
// model-predicted points.
func (c *TuningConfig) GetAugmentPoints() bool {
	if c.AugmentPoints == nil {
		return false
	}
	return *c.AugmentPoints
}

func (c *TuningConfig) GetSnakeAlpha() float64 {
	if c.SnakeAlpha == nil {
		return 0.01
	}
	return *c.SnakeAlpha
}

func (c *TuningConfig) GetSnakeBeta() float64 {
	if c.SnakeBeta == nil {
		return 0.5
	}
	return *c.SnakeBeta
}

func (c *TuningConfig) GetSnakeGamma() float64 {
	if c.SnakeGamma == nil {
		return 0.01
	}
	return *c.SnakeGamma
}

func (c *TuningConfig) GetSnakeWLine() float64 {
	if c.SnakeWLine == nil {
		return 0
	}
	return *c.SnakeWLine
}

func (c *TuningConfig) GetSnakeWEdge() float64 {
	if c.SnakeWEdge == nil {
		return 1
	}
	return *c.SnakeWEdge
}

func (c *TuningConfig) GetSnakeMaxIterations() int {
	if c.SnakeMaxIterations == nil {
		return 2500
	}
	return *c.SnakeMaxIterations
}

func (c *TuningConfig) GetSnakeConvergence() float64 {
	if c.SnakeConvergence == nil {
		return 0.1
	}
	return *c.SnakeConvergence
}

// GetSnakeSigma returns the Gaussian sigma applied to frames before
// contour refinement.
func (c *TuningConfig) GetSnakeSigma() float64 {
	if c.SnakeSigma == nil {
		return 2
	}
	return *c.SnakeSigma
}

// GetSigCutoff returns the sigmoid contrast-stretch cutoff in [0, 1].
func (c *TuningConfig) GetSigCutoff() float64 {
	if c.SigCutoff == nil {
		return 0.5
	}
	return *c.SigCutoff
}

// GetSigGain returns the sigmoid contrast-stretch gain.
func (c *TuningConfig) GetSigGain() float64 {
	if c.SigGain == nil {
		return 5
	}
	return *c.SigGain
}

// GetCannySigma returns the Gaussian sigma applied before edge detection.
func (c *TuningConfig) GetCannySigma() float64 {
	if c.CannySigma == nil {
		return 2
	}
	return *c.CannySigma
}

// GetCannyHigh returns the high hysteresis threshold on a [0, 1] magnitude scale.
func (c *TuningConfig) GetCannyHigh() float64 {
	if c.CannyHigh == nil {
		return 0.5
	}
	return *c.CannyHigh
}

// GetCannyLow returns the low hysteresis threshold on a [0, 1] magnitude scale.
func (c *TuningConfig) GetCannyLow() float64 {
	if c.CannyLow == nil {
		return 0.1
	}
	return *c.CannyLow
}

// GetClosingRadius returns the morphological closing radius (pixels).
func (c *TuningConfig) GetClosingRadius() int {
	if c.ClosingRadius == nil {
		return 3
	}
	return *c.ClosingRadius
}

// GetROI returns the crop rectangle, or the empty rectangle when unset
// (meaning "use the whole frame").
func (c *TuningConfig) GetROI() image.Rectangle {
	if len(c.ROI) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(c.ROI[0], c.ROI[1], c.ROI[0]+c.ROI[2], c.ROI[1]+c.ROI[3])
}
