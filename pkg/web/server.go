package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	middleware "github.com/go-chi/chi/v5/middleware"
	device "github.com/mpoegel/turnstile/pkg/device"
	event "github.com/mpoegel/turnstile/pkg/event"
)

type Options struct {
	Addr string
}

// Controller is the slice of the engine the console drives.
type Controller interface {
	Pause()
	Resume() error
	Reset() error
	SetFacing(device.Facing) error
	SwitchDevice(id string) error
	Status() event.EngineStatus
	Events() chan event.Event
	Unsubscribe(chan event.Event)
}

// Server is the operator console surface: a status snapshot, control
// endpoints, and a server-sent-event feed of engine events for the host UI
// to render.
type Server struct {
	opt        Options
	engine     Controller
	httpServer *http.Server
}

func NewServer(opt Options, engine Controller) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	s := &Server{
		opt:    opt,
		engine: engine,
		httpServer: &http.Server{
			Addr:    opt.Addr,
			Handler: r,
		},
	}

	r.Get("/status", s.HandleStatus)
	r.Get("/events", s.HandleEvents)
	r.Post("/pause", s.HandlePause)
	r.Post("/resume", s.HandleResume)
	r.Post("/reset", s.HandleReset)
	r.Post("/facing", s.HandleFacing)
	r.Post("/device", s.HandleDevice)

	return s
}

func (s *Server) Start() error {
	slog.Info("starting console server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// HandleEvents streams engine events as server-sent events until the client
// goes away or the engine closes.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	c := s.engine.Events()
	if c == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	defer s.engine.Unsubscribe(c)

	w.Header().Set("content-type", "text/event-stream")
	w.Header().Set("cache-control", "no-cache")
	w.Header().Set("connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-c:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("failed to marshal event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\n", ev.Kind)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) HandlePause(w http.ResponseWriter, r *http.Request) {
	s.engine.Pause()
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) HandleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Resume(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

type facingRequest struct {
	Facing device.Facing `json:"facing"`
}

func (s *Server) HandleFacing(w http.ResponseWriter, r *http.Request) {
	req := facingRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetFacing(req.Facing); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

type deviceRequest struct {
	DeviceID string `json:"device_id"`
}

func (s *Server) HandleDevice(w http.ResponseWriter, r *http.Request) {
	req := deviceRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("device_id is required"))
		return
	}
	if err := s.engine.SwitchDevice(req.DeviceID); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
