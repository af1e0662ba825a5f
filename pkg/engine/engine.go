package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	capture "github.com/mpoegel/turnstile/pkg/capture"
	device "github.com/mpoegel/turnstile/pkg/device"
	decode "github.com/mpoegel/turnstile/pkg/decode"
	event "github.com/mpoegel/turnstile/pkg/event"
	journal "github.com/mpoegel/turnstile/pkg/journal"
	scan "github.com/mpoegel/turnstile/pkg/scan"
	validate "github.com/mpoegel/turnstile/pkg/validate"
)

type Options struct {
	DeviceID    string
	Facing      device.Facing
	Decoder     decode.Kind
	Interval    time.Duration
	JournalDir  string
	RescanDelay time.Duration
	WatchDev    bool

	// Boundary implementations; nil fields get the production defaults.
	Provider   capture.Provider
	Enumerator device.Enumerator
	Client     validate.Client
}

// Engine composes the catalog, capture session, decode backend, scan loop
// and validator behind the host boundary: pause/resume, close, facing
// preference, device switch, and the event channel.
type Engine struct {
	opt Options

	catalog   *device.Catalog
	session   *capture.Session
	backend   decode.Backend
	loop      *scan.Loop
	validator *validate.Validator
	broker    *event.Broker[event.Event]
	journal   *journal.Writer
	watcher   *device.Watcher

	mu        sync.Mutex
	ctx       context.Context
	sessionID string
	deviceID  string
	started   bool
	closed    bool
	closeOnce sync.Once
}

func New(opt Options) (*Engine, error) {
	if opt.Client == nil {
		return nil, errors.New("validation client is required")
	}
	if opt.Provider == nil {
		opt.Provider = capture.NewGoCVProvider()
	}
	if opt.Enumerator == nil {
		opt.Enumerator = device.NewV4L2Enumerator()
	}
	if opt.Facing == "" {
		opt.Facing = device.FacingBack
	}
	if opt.Decoder == "" {
		opt.Decoder = decode.KindFrameDetector
	}

	backend, err := decode.Pick(opt.Decoder, opt.Interval)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opt:      opt,
		catalog:  device.NewCatalog(opt.Enumerator),
		session:  capture.NewSession(opt.Provider),
		backend:  backend,
		broker:   event.NewBroker[event.Event](),
		deviceID: opt.DeviceID,
	}
	e.catalog.SetFacing(opt.Facing)
	if opt.JournalDir != "" {
		e.journal = journal.NewWriter(opt.JournalDir)
	}
	return e, nil
}

// Start brings the engine up: event fan-out, device catalog, validator,
// scan loop, and the first capture attempt. A capture failure is returned
// for the caller to log, but the engine stays serviceable; Resume retries.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.ctx = ctx
	e.sessionID = uuid.NewString()
	e.mu.Unlock()

	go e.broker.Start()

	e.session.OnStateChange(func(state capture.State) {
		e.emit(event.Event{Kind: event.KindCameraState, CameraState: state})
	})

	var opts []validate.ValidatorOption
	if e.opt.RescanDelay > 0 {
		opts = append(opts, validate.WithRescanDelay(e.opt.RescanDelay))
	}
	e.validator = validate.NewValidator(ctx, e.opt.Client, e.handleOutcome, opts...)

	e.loop = scan.NewLoop(e.session, e.backend, e.opt.Interval, func(res decode.Result) {
		e.validator.Submit(res.Value)
	})

	e.catalog.Refresh(ctx)
	if e.opt.WatchDev {
		e.watcher = device.NewWatcher("", e.handleDeviceChange)
		if err := e.watcher.Start(ctx); err != nil {
			slog.Warn("device watch unavailable", "err", err)
			e.watcher = nil
		}
	}

	e.loop.Start(ctx)
	e.emit(event.Event{Kind: event.KindDecoderReady, Decoder: e.backend.Kind()})

	return e.openCapture(ctx)
}

// openCapture picks a device per the current preference and walks the
// constraint ladder. The classified failure is both emitted and returned.
func (e *Engine) openCapture(ctx context.Context) error {
	e.mu.Lock()
	preferred := e.deviceID
	e.mu.Unlock()

	devices := e.catalog.Devices()
	facing := e.catalog.PreferredFacing()

	facingID := ""
	if picked, ok := device.PickForFacing(devices, facing, ""); ok {
		facingID = picked.ID
	}
	exactID := preferred
	if exactID == "" {
		exactID = facingID
	}

	err := e.session.Start(ctx, capture.Ladder(exactID, facingID, facing))
	if err != nil {
		var capErr *capture.Error
		ev := event.Event{Kind: event.KindCameraState, CameraState: capture.StateFailed, Error: err.Error()}
		if errors.As(err, &capErr) {
			ev.ErrorClass = capErr.Class
		}
		e.emit(ev)
		return fmt.Errorf("failed to open camera: %w", err)
	}

	e.mu.Lock()
	e.deviceID = e.session.DeviceID()
	e.mu.Unlock()
	return nil
}

func (e *Engine) handleOutcome(o validate.Outcome) {
	ev := event.Event{Kind: event.KindOutcome, Code: o.Code}
	entry := journal.Entry{
		At:        time.Now(),
		SessionID: e.SessionID(),
		Code:      o.Code,
	}
	switch {
	case o.Err != nil:
		ev.Error = o.Err.Error()
		entry.Error = o.Err.Error()
		slog.Warn("validation call failed", "code", o.Code, "err", o.Err)
	default:
		ev.Status = o.Result.Status
		ev.Message = o.Result.Message
		entry.Status = o.Result.Status
		entry.Message = o.Result.Message
		slog.Info("validation outcome", "code", o.Code, "status", o.Result.Status)
	}
	if e.journal != nil {
		if err := e.journal.Append(entry); err != nil {
			slog.Error("failed to journal outcome", "err", err)
		}
	}
	e.emit(ev)
}

func (e *Engine) handleDeviceChange() {
	ctx := e.context()
	if ctx == nil {
		return
	}
	devices := e.catalog.Refresh(ctx)
	e.emit(event.Event{Kind: event.KindDeviceChange})

	active := e.session.DeviceID()
	if active == "" || !e.session.Streaming() {
		return
	}
	for _, d := range devices {
		if d.ID == active {
			return
		}
	}

	// The active camera disappeared; that is the one case where churn may
	// swap devices.
	slog.Warn("active camera disappeared", "device", active)
	e.mu.Lock()
	e.deviceID = ""
	e.mu.Unlock()
	e.session.Stop()
	if err := e.openCapture(ctx); err != nil {
		slog.Error("failed to reopen camera", "err", err)
	}
}

// Pause suspends sampling without releasing the camera. Idempotent.
func (e *Engine) Pause() {
	if e.loop != nil {
		e.loop.Pause()
	}
}

// Resume returns to scanning, re-requesting the camera stream if it had
// been stopped, and lifts the validator's post-success latch. Idempotent.
func (e *Engine) Resume() error {
	ctx := e.context()
	if ctx == nil {
		return errors.New("engine not started")
	}
	e.validator.Resume()
	var err error
	if !e.session.Streaming() {
		err = e.openCapture(ctx)
	}
	e.loop.Resume()
	return err
}

// Reset begins a fresh scan session: new session id, cleared dedup state.
func (e *Engine) Reset() error {
	e.mu.Lock()
	e.sessionID = uuid.NewString()
	e.mu.Unlock()
	e.validator.Reset()
	return e.Resume()
}

// SetFacing updates the facing preference and re-picks the device for it.
func (e *Engine) SetFacing(f device.Facing) error {
	if !f.IsValid() {
		return fmt.Errorf("invalid facing: %q", f)
	}
	ctx := e.context()
	if ctx == nil {
		return errors.New("engine not started")
	}
	e.catalog.SetFacing(f)
	e.mu.Lock()
	e.deviceID = ""
	e.mu.Unlock()
	return e.openCapture(ctx)
}

// SwitchDevice makes id the preferred device and restarts capture on it.
func (e *Engine) SwitchDevice(id string) error {
	ctx := e.context()
	if ctx == nil {
		return errors.New("engine not started")
	}
	e.mu.Lock()
	e.deviceID = id
	e.mu.Unlock()
	return e.openCapture(ctx)
}

// Close tears the whole scanner down: sampling cancelled before the stream
// is released, late validation outcomes discarded. Safe to call repeatedly.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		if e.loop != nil {
			e.loop.Cancel()
		}
		if e.watcher != nil {
			e.watcher.Stop()
		}
		e.session.Stop()
		if e.validator != nil {
			e.validator.Close()
		}
		e.backend.Close()
		e.broker.Stop()
		if e.journal != nil {
			e.journal.Close()
		}
		slog.Info("scanner closed", "session", e.SessionID())
	})
}

// Events subscribes to the engine's event feed. Returns nil once closed.
func (e *Engine) Events() chan event.Event {
	return e.broker.Subscribe()
}

func (e *Engine) Unsubscribe(c chan event.Event) {
	e.broker.Unsubscribe(c)
}

func (e *Engine) Status() event.EngineStatus {
	s := event.EngineStatus{
		SessionID:   e.SessionID(),
		CameraState: e.session.State(),
		DeviceID:    e.session.DeviceID(),
		Facing:      e.catalog.PreferredFacing(),
		Decoder:     e.backend.Kind(),
		Devices:     e.catalog.Devices(),
	}
	if e.loop != nil {
		s.LoopState = e.loop.State()
	}
	return s
}

func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

func (e *Engine) context() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.closed {
		return nil
	}
	return e.ctx
}

func (e *Engine) emit(ev event.Event) {
	ev.At = time.Now()
	ev.SessionID = e.SessionID()
	e.broker.Broadcast(ev)
}
