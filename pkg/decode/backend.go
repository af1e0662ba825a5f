package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// Result is one decoded code observed in a frame. Ephemeral: it only lives
// across the hand-off from backend to loop to validator.
type Result struct {
	Value      string
	ObservedAt time.Time
}

// ErrNoCode is the expected outcome of almost every frame: nothing decodable
// is visible. Callers keep sampling and never surface it.
var ErrNoCode = errors.New("no code in frame")

// Source is a non-owning view of the capture sink. Backends only read.
type Source interface {
	Streaming() bool
	Read(ctx context.Context) (image.Image, error)
}

// Kind tags the backend variant, selected once at startup and never swapped
// mid-session.
type Kind string

const (
	// KindFrameDetector is the pull variant: the scan loop drives it once
	// per sampled frame.
	KindFrameDetector Kind = "frame"

	// KindLibrary is the push variant: it drives itself against the sink
	// and delivers results through a callback.
	KindLibrary Kind = "library"
)

type Backend interface {
	Kind() Kind
	Close()
}

// PullBackend inspects a single frame on demand. Zero or more candidates
// may come back; the engine only consumes the first.
type PullBackend interface {
	Backend
	Detect(ctx context.Context, img image.Image) ([]Result, error)
}

// PushBackend self-drives against the sink once started and reports each
// decoded value (or hard failure) through onResult.
type PushBackend interface {
	Backend
	Start(ctx context.Context, src Source, onResult func(Result, error))
	Stop()
}

// Pick constructs the backend for the requested kind.
func Pick(kind Kind, interval time.Duration) (Backend, error) {
	switch kind {
	case KindFrameDetector:
		return NewFrameDetector(), nil
	case KindLibrary:
		return NewLibraryDecoder(interval), nil
	default:
		return nil, fmt.Errorf("unknown decode backend: %q", kind)
	}
}
