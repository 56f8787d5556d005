package edges

import (
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ToMat copies a grayscale frame into a single-channel CV_64F Mat.
// The caller owns the returned Mat and must Close it.
func ToMat(frame *mat.Dense) gocv.Mat {
	rows, cols := frame.Dims()
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			m.SetDoubleAt(y, x, frame.At(y, x))
		}
	}
	return m
}

// FromMat copies a single-channel Mat into a new frame. Mats of other
// depths are converted to CV_64F first.
func FromMat(m gocv.Mat) *mat.Dense {
	src := m
	if m.Type() != gocv.MatTypeCV64F {
		converted := gocv.NewMat()
		defer converted.Close()
		m.ConvertTo(&converted, gocv.MatTypeCV64F)
		src = converted
	}
	rows, cols := src.Rows(), src.Cols()
	out := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			out.Set(y, x, src.GetDoubleAt(y, x))
		}
	}
	return out
}
