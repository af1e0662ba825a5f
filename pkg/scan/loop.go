package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	decode "github.com/mpoegel/turnstile/pkg/decode"
)

// State of the sampling loop.
type State string

const (
	StateScanning State = "scanning"
	StatePaused   State = "paused"
)

const DefaultInterval = 50 * time.Millisecond

// Loop drives sampling. With a pull backend it asks for a decode once per
// tick; with a push backend it only supervises the backend's own lifecycle
// in lockstep with its Paused/Scanning state. Decoded values go to submit
// unconditionally while scanning: the sampling cadence is decoupled from
// validation latency, and dedup lives in the validator.
type Loop struct {
	src      decode.Source
	backend  decode.Backend
	submit   func(decode.Result)
	interval time.Duration

	mu      sync.Mutex
	state   State
	running bool
	ctx     context.Context
	stop    chan struct{}
	done    chan struct{}
}

func NewLoop(src decode.Source, backend decode.Backend, interval time.Duration, submit func(decode.Result)) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		src:      src,
		backend:  backend,
		submit:   submit,
		interval: interval,
		state:    StatePaused,
	}
}

// Start begins sampling in the Scanning state. Starting a running loop is a
// no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.state = StateScanning
	l.ctx = ctx
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	stop, done := l.stop, l.done
	l.mu.Unlock()

	if push, ok := l.backend.(decode.PushBackend); ok {
		push.Start(ctx, l.src, l.deliver)
		go l.superviseOnly(ctx, stop, done)
		return
	}
	go l.pump(ctx, stop, done)
}

// pump is the pull-variant tick: skip the sample if paused or the sink is
// not ready, otherwise detect and forward, and always keep ticking.
func (l *Loop) pump(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	pull := l.backend.(decode.PullBackend)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if l.State() != StateScanning {
				continue
			}
			if !l.src.Streaming() {
				continue
			}
			img, err := l.src.Read(ctx)
			if err != nil {
				continue
			}
			results, err := pull.Detect(ctx, img)
			if errors.Is(err, decode.ErrNoCode) {
				continue
			}
			if err != nil {
				slog.Warn("decode failed", "err", err)
				continue
			}
			if len(results) > 0 {
				l.submit(results[0])
			}
		}
	}
}

func (l *Loop) superviseOnly(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	select {
	case <-ctx.Done():
	case <-stop:
	}
	if push, ok := l.backend.(decode.PushBackend); ok {
		push.Stop()
	}
}

func (l *Loop) deliver(res decode.Result, err error) {
	if err != nil {
		slog.Warn("decode failed", "err", err)
		return
	}
	if l.State() != StateScanning {
		return
	}
	l.submit(res)
}

// Pause stops new sampling immediately. Pausing while paused is a no-op. An
// already-issued validation is allowed to finish; that is the validator's
// concern, not the loop's.
func (l *Loop) Pause() {
	l.mu.Lock()
	if l.state == StatePaused {
		l.mu.Unlock()
		return
	}
	l.state = StatePaused
	running := l.running
	l.mu.Unlock()

	if !running {
		return
	}
	if push, ok := l.backend.(decode.PushBackend); ok {
		push.Stop()
	}
}

// Resume returns the loop to sampling within one tick. Resuming while
// scanning is a no-op.
func (l *Loop) Resume() {
	l.mu.Lock()
	if l.state == StateScanning {
		l.mu.Unlock()
		return
	}
	l.state = StateScanning
	running, ctx := l.running, l.ctx
	l.mu.Unlock()

	if !running {
		return
	}
	if push, ok := l.backend.(decode.PushBackend); ok {
		push.Start(ctx, l.src, l.deliver)
	}
}

// Cancel synchronously stops all scheduling and waits for the loop to
// exit. Must run before the capture session is torn down so a stray tick
// never samples a detached sink. Safe to call repeatedly.
func (l *Loop) Cancel() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.state = StatePaused
	stop, done := l.stop, l.done
	l.mu.Unlock()

	close(stop)
	<-done
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
