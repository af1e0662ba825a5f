package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	gocv "gocv.io/x/gocv"
)

// GoCVProvider acquires camera streams through OpenCV video capture. It is
// the production implementation of the Provider boundary.
type GoCVProvider struct {
	// DefaultDevice is opened when a constraint level names no device.
	DefaultDevice string
}

func NewGoCVProvider() *GoCVProvider {
	return &GoCVProvider{DefaultDevice: "0"}
}

func (p *GoCVProvider) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := c.DeviceID
	if id == "" {
		id = p.DefaultDevice
	}

	cam, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, mapOpenError(id, err)
	}

	if c.IdealWidth > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(c.IdealWidth))
	}
	if c.IdealHeight > 0 {
		cam.Set(gocv.VideoCaptureFrameHeight, float64(c.IdealHeight))
	}

	stream := &gocvStream{
		cam:      cam,
		deviceID: id,
		buf:      gocv.NewMat(),
	}

	// Some drivers accept any property set but then refuse to deliver
	// frames; prove the stream before handing it out.
	if ok := cam.Read(&stream.buf); !ok {
		stream.Stop()
		if c.IdealWidth > 0 || c.IdealHeight > 0 {
			return nil, fmt.Errorf("%w: device %s rejected %dx%d", ErrConstraintFailed, id, c.IdealWidth, c.IdealHeight)
		}
		return nil, fmt.Errorf("%w: device %s produced no frame", ErrDeviceUnavailable, id)
	}

	if c.MaxWidth > 0 && stream.buf.Cols() > c.MaxWidth {
		stream.Stop()
		return nil, fmt.Errorf("%w: device %s delivers %d columns, max %d", ErrConstraintFailed, id, stream.buf.Cols(), c.MaxWidth)
	}

	return stream, nil
}

func mapOpenError(id string, err error) error {
	switch {
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, id, err)
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, id, err)
	default:
		return fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, id, err)
	}
}

// gocvStream is a single-track stream over one OpenCV capture handle. The
// handle and the read buffer are guarded by mu so a Stop racing a Read
// never frees memory out from under the decoder.
type gocvStream struct {
	mu       sync.Mutex
	cam      *gocv.VideoCapture
	deviceID string
	buf      gocv.Mat
	closed   bool
}

func (s *gocvStream) Tracks() []Track { return []Track{s} }

func (s *gocvStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cam.Close()
	s.buf.Close()
}

func (s *gocvStream) Settings() TrackSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return TrackSettings{DeviceID: s.deviceID}
	}
	return TrackSettings{
		DeviceID: s.deviceID,
		Width:    int(s.cam.Get(gocv.VideoCaptureFrameWidth)),
		Height:   int(s.cam.Get(gocv.VideoCaptureFrameHeight)),
	}
}

func (s *gocvStream) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrNoFrame
	}
	if ok := s.cam.Read(&s.buf); !ok || s.buf.Empty() {
		return nil, ErrNoFrame
	}
	img, err := s.buf.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}
