package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"

	device "github.com/mpoegel/turnstile/pkg/device"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

type fakeStream struct {
	deviceID string

	mu      sync.Mutex
	stopped bool
}

func (f *fakeStream) Tracks() []Track { return []Track{f} }

func (f *fakeStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeStream) Settings() TrackSettings {
	return TrackSettings{DeviceID: f.deviceID, Width: 640, Height: 480}
}

func (f *fakeStream) Read(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return nil, ErrNoFrame
	}
	return image.NewGray(image.Rect(0, 0, 2, 2)), nil
}

func (f *fakeStream) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fakeProvider rejects attempts until acceptAfter have failed, then grants a
// stream. It tracks every stream it ever handed out.
type fakeProvider struct {
	acceptAfter int
	failWith    error

	attempts []Constraints
	streams  []*fakeStream
}

func (f *fakeProvider) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	f.attempts = append(f.attempts, c)
	if len(f.attempts) <= f.acceptAfter {
		err := f.failWith
		if err == nil {
			err = ErrConstraintFailed
		}
		return nil, fmt.Errorf("%w: attempt %d", err, len(f.attempts))
	}
	stream := &fakeStream{deviceID: c.DeviceID}
	if stream.deviceID == "" {
		stream.deviceID = "default0"
	}
	f.streams = append(f.streams, stream)
	return stream, nil
}

func (f *fakeProvider) liveStreams() int {
	n := 0
	for _, s := range f.streams {
		if !s.isStopped() {
			n++
		}
	}
	return n
}

func TestLadderShape(t *testing.T) {
	ladder := Ladder("/dev/video2", "/dev/video0", device.FacingBack)
	require.Len(t, ladder, 4)
	assert.Equal(t, "/dev/video2", ladder[0].DeviceID)
	assert.Equal(t, DefaultIdealWidth, ladder[0].IdealWidth)
	assert.Equal(t, "/dev/video0", ladder[1].DeviceID)
	assert.Equal(t, DefaultIdealWidth, ladder[1].IdealWidth)
	assert.Equal(t, "/dev/video0", ladder[2].DeviceID)
	assert.Zero(t, ladder[2].IdealWidth)
	assert.Equal(t, Constraints{}, ladder[3])
}

func TestLadderShape_SameDevice(t *testing.T) {
	ladder := Ladder("/dev/video0", "/dev/video0", device.FacingBack)
	require.Len(t, ladder, 3)
	assert.Equal(t, Constraints{}, ladder[2])
}

func TestSessionStart_FirstLevelAccepted(t *testing.T) {
	provider := &fakeProvider{}
	session := NewSession(provider)

	err := session.Start(context.Background(), Ladder("/dev/video0", "/dev/video0", device.FacingBack))
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, session.State())
	assert.Equal(t, "/dev/video0", session.DeviceID())
	assert.Empty(t, session.Attempts())
}

func TestSessionStart_DegradesToBareLevel(t *testing.T) {
	// Levels 1-3 rejected, level 4 (unconstrained) accepted.
	provider := &fakeProvider{acceptAfter: 3}
	session := NewSession(provider)

	err := session.Start(context.Background(), Ladder("/dev/video2", "/dev/video0", device.FacingBack))
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, session.State())
	assert.Equal(t, "default0", session.DeviceID())
	assert.Len(t, session.Attempts(), 3)
}

func TestSessionStart_LadderExhaustion(t *testing.T) {
	provider := &fakeProvider{acceptAfter: 99, failWith: ErrConstraintFailed}
	session := NewSession(provider)

	ladder := Ladder("/dev/video2", "/dev/video0", device.FacingBack)
	err := session.Start(context.Background(), ladder)
	require.Error(t, err)
	assert.Equal(t, StateFailed, session.State())

	// Exactly K attempts were made and the reported error is the K-th one.
	assert.Len(t, provider.attempts, len(ladder))
	capErr := &Error{}
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, ClassConstraintUnsupported, capErr.Class)
	assert.Len(t, capErr.Attempts, len(ladder))
	assert.ErrorContains(t, capErr.Err, fmt.Sprintf("attempt %d", len(ladder)))
}

func TestSessionStart_ErrorClassification(t *testing.T) {
	cases := map[ErrorClass]error{
		ClassPermissionDenied:      ErrPermissionDenied,
		ClassDeviceUnavailable:     ErrDeviceUnavailable,
		ClassConstraintUnsupported: ErrConstraintFailed,
		ClassUnknown:               errors.New("driver exploded"),
	}
	for want, failure := range cases {
		provider := &fakeProvider{acceptAfter: 99, failWith: failure}
		session := NewSession(provider)
		err := session.Start(context.Background(), Ladder("/dev/video0", "/dev/video0", device.FacingBack))
		capErr := &Error{}
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, want, capErr.Class)
	}
}

func TestSession_NeverTwoLiveStreams(t *testing.T) {
	provider := &fakeProvider{}
	session := NewSession(provider)

	require.NoError(t, session.Start(context.Background(), Ladder("/dev/videoA", "/dev/videoA", device.FacingBack)))
	assert.Equal(t, 1, provider.liveStreams())

	require.NoError(t, session.Start(context.Background(), Ladder("/dev/videoB", "/dev/videoB", device.FacingBack)))
	assert.Equal(t, 1, provider.liveStreams())
	assert.Equal(t, "/dev/videoB", session.DeviceID())

	session.Stop()
	assert.Equal(t, 0, provider.liveStreams())
	assert.Equal(t, StateStopped, session.State())
}

func TestSessionStart_SameDeviceIsNoop(t *testing.T) {
	provider := &fakeProvider{}
	session := NewSession(provider)

	ladder := Ladder("/dev/video0", "/dev/video0", device.FacingBack)
	require.NoError(t, session.Start(context.Background(), ladder))
	require.NoError(t, session.Start(context.Background(), ladder))
	assert.Len(t, provider.streams, 1)
	assert.Equal(t, 1, provider.liveStreams())
}

func TestSessionStop_Repeatable(t *testing.T) {
	provider := &fakeProvider{}
	session := NewSession(provider)

	session.Stop()
	assert.Equal(t, StateIdle, session.State())

	require.NoError(t, session.Start(context.Background(), Ladder("/dev/video0", "/dev/video0", device.FacingBack)))
	session.Stop()
	session.Stop()
	assert.Equal(t, StateStopped, session.State())
	assert.Equal(t, 0, provider.liveStreams())

	// Stop from Failed is a no-op too.
	failing := NewSession(&fakeProvider{acceptAfter: 99})
	_ = failing.Start(context.Background(), Ladder("/dev/video0", "/dev/video0", device.FacingBack))
	failing.Stop()
}

func TestSessionRead_NotStreaming(t *testing.T) {
	session := NewSession(&fakeProvider{})
	_, err := session.Read(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestSessionStateObserver(t *testing.T) {
	provider := &fakeProvider{}
	session := NewSession(provider)

	states := []State{}
	session.OnStateChange(func(s State) { states = append(states, s) })

	require.NoError(t, session.Start(context.Background(), Ladder("/dev/video0", "/dev/video0", device.FacingBack)))
	session.Stop()
	assert.Equal(t, []State{StateRequesting, StateStreaming, StateStopped}, states)
}
