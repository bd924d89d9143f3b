// Package detection turns a resized RGB frame into at most one moving-blob
// centroid, using background subtraction and contour analysis.
package detection

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/homevision/homevision/internal/camera"
)

// Centroid is a detected blob's center, normalized to [0,1] on both axes
// against the frame it was found in.
type Centroid struct {
	X, Y float64
}

// Detector maintains the background model across frames. It is not safe
// for concurrent use; the fusion loop owns it exclusively.
type Detector struct {
	bg             gocv.BackgroundSubtractorMOG2
	kernel         gocv.Mat
	minContourArea float64
}

// Config controls the sensitivity of the background-subtraction pipeline.
type Config struct {
	// MinContourArea is the minimum contour area (in resized-frame
	// pixels) accepted as a detection.
	MinContourArea float64
}

// New constructs a Detector with a MOG2 background model tuned for an
// indoor doorway camera: a long history smooths out slow lighting drift,
// and shadows are flagged by the model but still pass the later binary
// threshold as foreground.
func New(cfg Config) *Detector {
	return &Detector{
		bg:             gocv.NewBackgroundSubtractorMOG2WithParams(500, 16, true),
		kernel:         gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(5, 5)),
		minContourArea: cfg.MinContourArea,
	}
}

// Close releases the gocv resources held by the detector.
func (d *Detector) Close() error {
	if err := d.bg.Close(); err != nil {
		return err
	}
	return d.kernel.Close()
}

// Detect runs the background-subtraction pipeline on frame and returns
// the largest qualifying contour's centroid. areaScale multiplies the
// configured minimum contour area threshold (pass 1.0 normally, or a
// smaller factor to be more sensitive when a PIR pulse corroborates
// motion). The second return value is false when no contour qualifies,
// the frame decodes to nothing usable, or the winning contour's moments
// are degenerate (m00 == 0).
func (d *Detector) Detect(frame camera.Frame, areaScale float64) (Centroid, bool) {
	if frame.Width == 0 || frame.Height == 0 || len(frame.Pix) == 0 {
		return Centroid{}, false
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return Centroid{}, false
	}
	defer mat.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	d.bg.Apply(mat, &mask)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(mask, &thresh, 200, 255, gocv.ThresholdBinary)

	gocv.MorphologyExWithParams(thresh, &thresh, gocv.MorphOpen, d.kernel, 2, gocv.BorderConstant)
	gocv.MorphologyExWithParams(thresh, &thresh, gocv.MorphClose, d.kernel, 2, gocv.BorderConstant)

	contours := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return Centroid{}, false
	}

	largest, largestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > largestArea {
			largestArea = area
			largest = i
		}
	}
	if largest < 0 {
		return Centroid{}, false
	}

	minArea := d.minContourArea * areaScale
	if largestArea < minArea {
		return Centroid{}, false
	}

	moments := gocv.Moments(contours.At(largest), false)
	m00 := moments["m00"]
	if m00 == 0 {
		return Centroid{}, false
	}
	cx := moments["m10"] / m00
	cy := moments["m01"] / m00

	return Centroid{
		X: cx / float64(frame.Width),
		Y: cy / float64(frame.Height),
	}, true
}

// Resize scales frame to width pixels wide, preserving aspect ratio, the
// way the fusion service prepares every captured frame before detection.
func Resize(frame camera.Frame, width int) (camera.Frame, error) {
	if err := frame.Validate(); err != nil {
		return camera.Frame{}, err
	}
	if frame.Width == width {
		return frame, nil
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return camera.Frame{}, err
	}
	defer mat.Close()

	height := int(float64(frame.Height) * float64(width) / float64(frame.Width))
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)

	out := camera.Frame{
		Width:  width,
		Height: height,
		Pix:    append([]byte(nil), resized.ToBytes()...),
	}
	return out, nil
}
