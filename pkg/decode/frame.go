package decode

import (
	"context"
	"fmt"
	"image"
	"time"

	gocv "gocv.io/x/gocv"
)

// FrameDetector decodes QR codes with OpenCV's native detector. The scan
// loop calls Detect once per sampled frame.
type FrameDetector struct {
	detector gocv.QRCodeDetector
}

func NewFrameDetector() *FrameDetector {
	return &FrameDetector{detector: gocv.NewQRCodeDetector()}
}

func (d *FrameDetector) Kind() Kind { return KindFrameDetector }

func (d *FrameDetector) Detect(ctx context.Context, img image.Image) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	value := d.detector.DetectAndDecode(mat, &points, &straight)
	if value == "" {
		return nil, ErrNoCode
	}
	return []Result{{Value: value, ObservedAt: time.Now()}}, nil
}

func (d *FrameDetector) Close() {
	d.detector.Close()
}
