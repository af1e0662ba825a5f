package validate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultRescanDelay = 2 * time.Second
)

// Validator turns the stream of decoded codes into at most one outstanding
// validation request, and exactly one emitted Outcome per accepted code.
// The same physical ticket sits in front of the camera for many consecutive
// frames; the dedup state here is what keeps that from becoming a request
// per frame.
type Validator struct {
	client      Client
	emit        func(Outcome)
	timeout     time.Duration
	rescanDelay time.Duration
	now         func() time.Time

	mu         sync.Mutex
	ctx        context.Context
	inflight   string
	lastCode   string
	lastDoneAt time.Time
	lastOK     bool
	latched    bool
	closed     bool
}

type ValidatorOption func(*Validator)

func WithTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.timeout = d }
}

// WithRescanDelay sets how long a rejected or errored code stays suppressed
// before the same ticket may be re-presented.
func WithRescanDelay(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.rescanDelay = d }
}

func withClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

func NewValidator(ctx context.Context, client Client, emit func(Outcome), opts ...ValidatorOption) *Validator {
	v := &Validator{
		client:      client,
		emit:        emit,
		timeout:     DefaultTimeout,
		rescanDelay: DefaultRescanDelay,
		now:         time.Now,
		ctx:         ctx,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Submit asynchronously validates a code. Dropped without effect when a
// request is outstanding, when the code matches the most recently completed
// one, or after a terminal success until Resume. The in-flight mark is set
// before this returns, so a duplicate arriving on the very next frame races
// nothing.
func (v *Validator) Submit(code string) {
	v.mu.Lock()
	if v.closed || v.latched || v.inflight != "" || !v.acceptsLocked(code) {
		v.mu.Unlock()
		return
	}
	v.inflight = code
	v.mu.Unlock()

	go v.check(code)
}

// acceptsLocked applies the completed-code suppression: the last completed
// code is dropped until a different code completes, the session resets, or
// (for rejections and transport errors) the rescan delay has passed so the
// operator can deliberately re-present the same ticket.
func (v *Validator) acceptsLocked(code string) bool {
	if code != v.lastCode || v.lastCode == "" {
		return true
	}
	if v.lastOK {
		return false
	}
	return v.now().Sub(v.lastDoneAt) >= v.rescanDelay
}

func (v *Validator) check(code string) {
	ctx, cancel := context.WithTimeout(v.ctx, v.timeout)
	defer cancel()

	result, err := v.client.Check(ctx, code)

	v.mu.Lock()
	v.inflight = ""
	v.lastCode = code
	v.lastDoneAt = v.now()
	v.lastOK = err == nil && result.Status.Admitted()
	if v.lastOK {
		// A success ends the scan: no further submissions until the host
		// resumes or resets the session.
		v.latched = true
	}
	closed := v.closed
	v.mu.Unlock()

	if closed {
		// The scanner was torn down while the request was in flight; the
		// completed decision is dropped rather than delivered to a dead UI.
		slog.Debug("discarding late validation outcome", "code", code)
		return
	}
	if err != nil {
		v.emit(Outcome{Code: code, Err: err})
		return
	}
	v.emit(Outcome{Code: code, Result: result})
}

// Resume lifts the post-success latch so scanning can accept codes again.
func (v *Validator) Resume() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latched = false
}

// Reset clears all dedup state, as on an explicit session reset/reopen. A
// code validated in the previous session is accepted again afterwards.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latched = false
	v.lastCode = ""
	v.lastOK = false
	v.lastDoneAt = time.Time{}
}

// Close stops outcome delivery permanently; an in-flight request may still
// complete but its result is discarded.
func (v *Validator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}
