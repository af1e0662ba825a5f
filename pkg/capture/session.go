package capture

import (
	"context"
	"image"
	"log/slog"
	"sync"
)

// State of a capture session.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

func (s State) String() string { return string(s) }

func (s State) IsActive() bool {
	return s == StateRequesting || s == StateStreaming
}

// TrackSettings are the settings the platform actually granted, which may
// differ from the requested constraints.
type TrackSettings struct {
	DeviceID string
	Width    int
	Height   int
}

type Track interface {
	Stop()
	Settings() TrackSettings
}

// Stream is a live camera stream. Read returns the most recent frame, or
// ErrNoFrame when nothing is available yet.
type Stream interface {
	Tracks() []Track
	Read(ctx context.Context) (image.Image, error)
}

// Provider is the platform capture boundary. Acquire blocks until the
// platform grants or declines access and returns one of the sentinel errors
// on failure.
type Provider interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Session owns at most one live stream at a time and is the only component
// that stops its tracks. Decode backends read frames through the session
// but never mutate the stream.
type Session struct {
	mu       sync.Mutex
	provider Provider
	state    State
	stream   Stream
	deviceID string
	attempts []Attempt
	onState  func(State)
}

func NewSession(provider Provider) *Session {
	return &Session{
		provider: provider,
		state:    StateIdle,
	}
}

// OnStateChange registers a single observer invoked after every state
// transition. Must be set before Start. The observer runs with the session
// lock held and must not call back into the session.
func (s *Session) OnStateChange(fn func(State)) {
	s.onState = fn
}

// Start walks the constraint ladder in order and stops at the first level
// the platform accepts. Starting while already streaming from the same
// resolved device is a no-op; a different desired device stops the current
// stream first. On total failure the session transitions to Failed and the
// returned *Error carries the last attempt's error plus per-level
// diagnostics.
func (s *Session) Start(ctx context.Context, ladder []Constraints) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	desired := ""
	if len(ladder) > 0 {
		desired = ladder[0].DeviceID
	}
	if s.state == StateStreaming {
		if desired == "" || desired == s.deviceID {
			return nil
		}
		s.stopLocked()
	}

	s.setStateLocked(StateRequesting)
	s.attempts = nil

	var lastErr error
	for _, c := range ladder {
		stream, err := s.provider.Acquire(ctx, c)
		if err != nil {
			slog.Debug("capture attempt failed", "device", c.DeviceID, "err", err)
			s.attempts = append(s.attempts, Attempt{Constraints: c, Err: err})
			lastErr = err
			continue
		}
		s.stream = stream
		s.deviceID = resolveDeviceID(stream, c.DeviceID)
		s.setStateLocked(StateStreaming)
		slog.Info("camera streaming", "device", s.deviceID, "failedAttempts", len(s.attempts))
		return nil
	}

	s.setStateLocked(StateFailed)
	return &Error{
		Class:    classify(lastErr),
		Attempts: append([]Attempt{}, s.attempts...),
		Err:      lastErr,
	}
}

// Stop releases the stream: every track stopped, sink detached. Safe to
// call repeatedly and from any state.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.stream != nil {
		for _, track := range s.stream.Tracks() {
			track.Stop()
		}
		s.stream = nil
	}
	if s.state == StateIdle {
		return
	}
	s.setStateLocked(StateStopped)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Streaming() bool {
	return s.State() == StateStreaming
}

// DeviceID is the device the platform actually granted, not necessarily the
// one requested.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// Attempts reports the failed ladder levels from the most recent Start.
func (s *Session) Attempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt{}, s.attempts...)
}

// Read pulls the latest frame from the sink. Returns ErrNoFrame when the
// session is not streaming.
func (s *Session) Read(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return nil, ErrNoFrame
	}
	return stream.Read(ctx)
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	if s.onState != nil {
		s.onState(state)
	}
}

func resolveDeviceID(stream Stream, requested string) string {
	tracks := stream.Tracks()
	if len(tracks) > 0 && tracks[0].Settings().DeviceID != "" {
		return tracks[0].Settings().DeviceID
	}
	return requested
}
