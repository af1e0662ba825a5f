package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	gozxing "github.com/makiuchi-d/gozxing"
	qrcode "github.com/makiuchi-d/gozxing/qrcode"
)

// LibraryDecoder decodes QR codes with the gozxing reader. Unlike the frame
// detector it drives itself: once started it samples the sink on its own
// cadence and pushes every decoded value through the callback.
type LibraryDecoder struct {
	reader   gozxing.Reader
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLibraryDecoder(interval time.Duration) *LibraryDecoder {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &LibraryDecoder{
		reader:   qrcode.NewQRCodeReader(),
		interval: interval,
	}
}

func (d *LibraryDecoder) Kind() Kind { return KindLibrary }

// Start begins the decode loop. Starting while already running is a no-op.
func (d *LibraryDecoder) Start(ctx context.Context, src Source, onResult func(Result, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.run(loopCtx, src, onResult, d.done)
}

func (d *LibraryDecoder) run(ctx context.Context, src Source, onResult func(Result, error), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !src.Streaming() {
				continue
			}
			img, err := src.Read(ctx)
			if err != nil {
				continue
			}
			value, err := d.decode(img)
			if errors.Is(err, ErrNoCode) {
				continue
			}
			if err != nil {
				onResult(Result{}, err)
				continue
			}
			onResult(Result{Value: value, ObservedAt: time.Now()}, nil)
		}
	}
}

func (d *LibraryDecoder) decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to binarize frame: %w", err)
	}
	result, err := d.reader.Decode(bmp, nil)
	if err != nil {
		// The reader's typed exceptions are its documented way of saying
		// "nothing decodable here"; everything else is a hard failure.
		var readerErr gozxing.ReaderException
		if errors.As(err, &readerErr) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("decode failed: %w", err)
	}
	return result.GetText(), nil
}

// Stop halts the decode loop and waits for it to exit. Safe to call
// repeatedly.
func (d *LibraryDecoder) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *LibraryDecoder) Close() {
	d.Stop()
}
