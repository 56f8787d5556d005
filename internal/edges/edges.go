// Package edges turns grayscale eye frames into candidate pupil boundary
// points. Frames are cropped to the region of interest, contrast
// stretched with a sigmoid, closed to suppress eyelashes and glints,
// blurred and passed through a Canny detector. The Scharr gradient
// magnitude of the blurred frame is kept for scoring candidate ellipses.
package edges

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

var (
	// ErrEmptyFrame is returned for a nil or zero-sized frame.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrEmptyROI is returned when the region of interest does not
	// overlap the frame.
	ErrEmptyROI = errors.New("region of interest outside frame")
)

// Result holds everything one pass of the detector produces.
type Result struct {
	Points    []ellipse.Point // Edge pixels in frame coordinates
	Magnitude *mat.Dense      // Gradient magnitude over the cropped region
	Offset    image.Point     // Frame coordinates of the cropped region's origin
}

// Detector extracts pupil edge points from grayscale frames.
// A Detector is safe for concurrent use.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// Detect returns the edge points of frame, in frame coordinates.
func (d *Detector) Detect(frame *mat.Dense) ([]ellipse.Point, error) {
	res, err := d.Analyze(frame)
	if err != nil {
		return nil, err
	}
	return res.Points, nil
}

// Analyze runs the full detector and also returns the gradient magnitude.
func (d *Detector) Analyze(frame *mat.Dense) (Result, error) {
	roi, err := d.crop(frame)
	if err != nil {
		return Result{}, err
	}

	src := ToMat(roi.frame)
	defer src.Close()

	pre := d.preprocess(src)
	defer pre.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	if d.cfg.CannySigma > 0 {
		gocv.GaussianBlur(pre, &blurred, image.Point{}, d.cfg.CannySigma, d.cfg.CannySigma, gocv.BorderReplicate)
	} else {
		pre.CopyTo(&blurred)
	}

	mag := scharrMagnitude(blurred)
	defer mag.Close()

	points := d.canny(blurred, roi.offset)
	tracef("%d edge points in %dx%d region at %v", len(points), src.Cols(), src.Rows(), roi.offset)

	return Result{
		Points:    points,
		Magnitude: FromMat(mag),
		Offset:    roi.offset,
	}, nil
}

// Preprocess crops frame to the region of interest and applies the
// sigmoid contrast stretch and closing. The result is in [0, 1].
func (d *Detector) Preprocess(frame *mat.Dense) (*mat.Dense, error) {
	roi, err := d.crop(frame)
	if err != nil {
		return nil, err
	}
	src := ToMat(roi.frame)
	defer src.Close()
	pre := d.preprocess(src)
	defer pre.Close()
	return FromMat(pre), nil
}

type region struct {
	frame  *mat.Dense
	offset image.Point
}

func (d *Detector) crop(frame *mat.Dense) (region, error) {
	if frame == nil || frame.IsEmpty() {
		return region{}, ErrEmptyFrame
	}
	rows, cols := frame.Dims()
	bounds := image.Rect(0, 0, cols, rows)
	if d.cfg.ROI.Empty() {
		return region{frame: frame}, nil
	}
	r := d.cfg.ROI.Intersect(bounds)
	if r.Empty() {
		opsf("roi %v does not overlap %dx%d frame", d.cfg.ROI, cols, rows)
		return region{}, fmt.Errorf("%w: roi %v, frame %v", ErrEmptyROI, d.cfg.ROI, bounds)
	}
	if r != d.cfg.ROI {
		diagf("roi %v clipped to %v", d.cfg.ROI, r)
	}
	sub := frame.Slice(r.Min.Y, r.Max.Y, r.Min.X, r.Max.X).(*mat.Dense)
	return region{frame: sub, offset: r.Min}, nil
}

// preprocess applies out = 1 / (1 + exp(gain * (cutoff - in))) followed by
// a grayscale closing with an elliptical element.
func (d *Detector) preprocess(src gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	src.ConvertToWithParams(&out, gocv.MatTypeCV64F, float32(-d.cfg.SigGain), float32(d.cfg.SigGain*d.cfg.SigCutoff))
	gocv.Exp(out, &out)
	out.AddFloat(1)

	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 0, 0, 0), out.Rows(), out.Cols(), gocv.MatTypeCV64F)
	defer ones.Close()
	gocv.Divide(ones, out, &out)

	if r := d.cfg.ClosingRadius; r > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 2*r + 1, Y: 2*r + 1})
		defer kernel.Close()
		gocv.MorphologyEx(out, &out, gocv.MorphClose, kernel)
	}
	return out
}

// canny runs hysteresis edge detection on the 8-bit rendering of blurred.
// Thresholds are fractions of full scale, as for frames in [0, 1].
func (d *Detector) canny(blurred gocv.Mat, offset image.Point) []ellipse.Point {
	gray := gocv.NewMat()
	defer gray.Close()
	blurred.ConvertToWithParams(&gray, gocv.MatTypeCV8U, 255, 0)

	edgeMap := gocv.NewMat()
	defer edgeMap.Close()
	gocv.Canny(gray, &edgeMap, float32(d.cfg.CannyLow*255), float32(d.cfg.CannyHigh*255))

	if gocv.CountNonZero(edgeMap) == 0 {
		return nil
	}
	idx := gocv.NewMat()
	defer idx.Close()
	gocv.FindNonZero(edgeMap, &idx)

	points := make([]ellipse.Point, 0, idx.Rows())
	for i := 0; i < idx.Rows(); i++ {
		v := idx.GetVeciAt(i, 0)
		points = append(points, ellipse.Point{
			X: float64(int(v[0]) + offset.X),
			Y: float64(int(v[1]) + offset.Y),
		})
	}
	return points
}

// scharrMagnitude returns the Scharr gradient magnitude of src, scaled to
// intensity change per pixel.
func scharrMagnitude(src gocv.Mat) gocv.Mat {
	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	gocv.Scharr(src, &gx, gocv.MatTypeCV64F, 1, 0, 1.0/32, 0, gocv.BorderReplicate)
	gocv.Scharr(src, &gy, gocv.MatTypeCV64F, 0, 1, 1.0/32, 0, gocv.BorderReplicate)

	mag := gocv.NewMat()
	gocv.Magnitude(gx, gy, &mag)
	return mag
}

// MeanBoundaryMagnitude returns the mean of mag sampled at n points on the
// boundary of p, rounded to the nearest pixel and clamped to mag's bounds.
// Ellipses that cut through the pupil interior score low.
func MeanBoundaryMagnitude(mag *mat.Dense, p ellipse.Params, n int) float64 {
	if mag == nil || mag.IsEmpty() || n <= 0 {
		return 0
	}
	rows, cols := mag.Dims()
	var sum float64
	for _, pt := range ellipse.SampleBoundary(p, n) {
		x := clampIndex(pt.X, cols)
		y := clampIndex(pt.Y, rows)
		sum += mag.At(y, x)
	}
	return sum / float64(n)
}

func clampIndex(v float64, size int) int {
	i := int(math.Round(v))
	if i < 0 || v != v {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}
