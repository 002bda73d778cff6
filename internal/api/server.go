// Package api serves the instructor console: health and readiness probes,
// event history, live event streaming, metrics and session controls.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/events"
	"github.com/AaronLay10/FoleySim/internal/orchestrator"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/session"
	"github.com/AaronLay10/FoleySim/internal/storage/postgres"
)

// SessionController is the part of the session loop the console drives.
type SessionController interface {
	GrabStart(cid scene.ControllerID, id scene.ObjectID) error
	GrabEnd(cid scene.ControllerID) error
	ConfirmAction(name string) error
	Advance() error
	Skip() error
	Restart() error
	Status() (orchestrator.Status, string)
	Completed() bool
}

// History reads persisted events.
type History interface {
	QuerySession(sessionID string, limit int) ([]postgres.EventRow, error)
	Sessions(limit int) ([]postgres.SessionSummary, error)
}

// Options configures a Server.
type Options struct {
	Session   SessionController
	Readiness *Readiness
	Metrics   *Metrics
	Auth      *Auth
	// History is optional; without it /sessions and ?session= return 503.
	History History
	Logger  zerolog.Logger
}

// Server is the HTTP surface of the simulator.
type Server struct {
	session SessionController
	ready   *Readiness
	metrics *Metrics
	auth    *Auth
	history History
	log     zerolog.Logger
}

func NewServer(o Options) *Server {
	if o.Readiness == nil {
		o.Readiness = NewReadiness()
	}
	return &Server{
		session: o.Session,
		ready:   o.Readiness,
		metrics: o.Metrics,
		auth:    o.Auth,
		history: o.History,
		log:     o.Logger,
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	authed := s.auth.RequireAnyRole
	mux.HandleFunc("GET /events", authed(s.handleEvents))
	mux.HandleFunc("GET /state", authed(s.handleState))
	mux.HandleFunc("GET /ws/events", authed(s.handleEventStream))
	mux.HandleFunc("GET /sessions", s.auth.RequireAdmin(s.handleSessions))

	mux.HandleFunc("POST /session/advance", authed(s.handleAdvance))
	mux.HandleFunc("POST /session/skip", authed(s.handleSkip))
	mux.HandleFunc("POST /session/action", authed(s.handleAction))
	mux.HandleFunc("POST /session/grab", authed(s.handleGrab))
	mux.HandleFunc("POST /session/release", authed(s.handleRelease))
	mux.HandleFunc("POST /session/restart", s.auth.RequireAdmin(s.handleRestart))
	return mux
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "foleysim",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := s.ready.Check()
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// handleEvents returns the in-memory ring, or a persisted session's
// events when ?session= is given.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		writeJSON(w, http.StatusOK, events.Snapshot())
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "event history not configured")
		return
	}
	rows, err := s.history.QuerySession(id, queryLimit(r))
	if err != nil {
		s.log.Error().Err(err).Str("session_id", id).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "event history not configured")
		return
	}
	list, err := s.history.Sessions(queryLimit(r))
	if err != nil {
		s.log.Error().Err(err).Msg("sessions query failed")
		writeError(w, http.StatusInternalServerError, "sessions query failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	SessionID string              `json:"session_id"`
	Completed bool                `json:"completed"`
	Status    orchestrator.Status `json:"status"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, id := s.session.Status()
	writeJSON(w, http.StatusOK, StateResponse{
		SessionID: id,
		Completed: s.session.Completed(),
		Status:    st,
	})
}

type OperatorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type ActionRequest struct {
	Action string `json:"action"`
}

type GrabRequest struct {
	Hand string `json:"hand"`
	Item string `json:"item,omitempty"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.operate(w, "operator.advance", nil, s.session.Advance)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.operate(w, "operator.skip", nil, s.session.Skip)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.operate(w, "operator.action", map[string]interface{}{"action": "restart"}, s.session.Restart)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action required")
		return
	}
	s.operate(w, "operator.action", map[string]interface{}{"action": req.Action}, func() error {
		return s.session.ConfirmAction(req.Action)
	})
}

func (s *Server) handleGrab(w http.ResponseWriter, r *http.Request) {
	var req GrabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Hand == "" {
		writeError(w, http.StatusBadRequest, "hand required")
		return
	}
	id, err := scene.ParseObjectID(req.Item)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fields := map[string]interface{}{"action": "grab", "hand": req.Hand, "item": id.String()}
	s.operate(w, "operator.action", fields, func() error {
		return s.session.GrabStart(scene.ControllerID(req.Hand), id)
	})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req GrabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Hand == "" {
		writeError(w, http.StatusBadRequest, "hand required")
		return
	}
	fields := map[string]interface{}{"action": "release", "hand": req.Hand}
	s.operate(w, "operator.action", fields, func() error {
		return s.session.GrabEnd(scene.ControllerID(req.Hand))
	})
}

// operate runs a session control and records it as an operator event
// when it succeeds.
func (s *Server) operate(w http.ResponseWriter, event string, fields map[string]interface{}, fn func() error) {
	if err := fn(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if _, err := events.Emit("info", event, "", fields); err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("emit failed")
	}
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrGateClosed),
		errors.Is(err, orchestrator.ErrWrongStep),
		errors.Is(err, orchestrator.ErrSkipUnavailable),
		errors.Is(err, orchestrator.ErrSessionComplete):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNotStarted),
		errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, OperatorResponse{OK: false, Error: msg})
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully and closes every live event stream.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	events.CloseAllSubscribers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
