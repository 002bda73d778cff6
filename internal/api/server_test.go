package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/config"
	"github.com/AaronLay10/FoleySim/internal/events"
	"github.com/AaronLay10/FoleySim/internal/orchestrator"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/session"
	"github.com/AaronLay10/FoleySim/internal/storage/postgres"
)

type fakeSession struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSession) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeSession) GrabStart(cid scene.ControllerID, id scene.ObjectID) error {
	return f.record(fmt.Sprintf("grab %s %s", cid, id))
}
func (f *fakeSession) GrabEnd(cid scene.ControllerID) error {
	return f.record(fmt.Sprintf("release %s", cid))
}
func (f *fakeSession) ConfirmAction(name string) error { return f.record("action " + name) }
func (f *fakeSession) Advance() error { return f.record("advance") }
func (f *fakeSession) Skip() error { return f.record("skip") }
func (f *fakeSession) Restart() error { return f.record("restart") }
func (f *fakeSession) Completed() bool { return false }
func (f *fakeSession) Status() (orchestrator.Status, string) {
	return orchestrator.Status{
		State:  orchestrator.SimulationState{CurrentStep: 4, GateOpen: true},
		Prompt: "Lubricate the catheter.",
		Hints:  []string{},
		Held:   map[string]string{},
	}, "session-1"
}

type fakeHistory struct {
	rows    []postgres.EventRow
	summary []postgres.SessionSummary
	err     error
	gotID   string
	gotLim  int
}

func (f *fakeHistory) QuerySession(id string, limit int) ([]postgres.EventRow, error) {
	f.gotID, f.gotLim = id, limit
	return f.rows, f.err
}

func (f *fakeHistory) Sessions(limit int) ([]postgres.SessionSummary, error) {
	f.gotLim = limit
	return f.summary, f.err
}

func newTestServer(sess *fakeSession, opts ...func(*Options)) http.Handler {
	o := Options{Session: sess, Logger: zerolog.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	return NewServer(o).Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := do(newTestServer(&fakeSession{}), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "foleysim" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *Readiness)
		wantCode int
		checks   map[string]string
	}{
		{
			name: "all ready",
			setup: func(r *Readiness) {
				r.SetOrchestratorReady(true)
				r.SetMQTT(true, false)
				r.SetPostgres(true, false)
			},
			wantCode: http.StatusOK,
			checks:   map[string]string{"orchestrator": "ok", "mqtt": "ok", "postgres": "ok"},
		},
		{
			name: "orchestrator not ready",
			setup: func(r *Readiness) {
				r.SetMQTT(true, false)
				r.SetPostgres(true, false)
			},
			wantCode: http.StatusServiceUnavailable,
			checks:   map[string]string{"orchestrator": "not_ready"},
		},
		{
			name: "optional dependencies down",
			setup: func(r *Readiness) {
				r.SetOrchestratorReady(true)
				r.SetMQTT(false, true)
				r.SetPostgres(false, true)
			},
			wantCode: http.StatusOK,
			checks:   map[string]string{"mqtt": "unavailable", "postgres": "unavailable"},
		},
		{
			name: "required mqtt down",
			setup: func(r *Readiness) {
				r.SetOrchestratorReady(true)
				r.SetMQTT(false, false)
				r.SetPostgres(false, true)
			},
			wantCode: http.StatusServiceUnavailable,
			checks:   map[string]string{"mqtt": "not_ready", "postgres": "unavailable"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready := NewReadiness()
			tt.setup(ready)
			h := newTestServer(&fakeSession{}, func(o *Options) { o.Readiness = ready })

			w := do(h, "GET", "/ready", "")
			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Ready != (tt.wantCode == http.StatusOK) {
				t.Errorf("ready=%v inconsistent with status %d", resp.Ready, w.Code)
			}
			for name, want := range tt.checks {
				if got := resp.Checks[name].Status; got != want {
					t.Errorf("%s: expected %q, got %q", name, want, got)
				}
			}
		})
	}
}

func TestStateEndpoint(t *testing.T) {
	w := do(newTestServer(&fakeSession{}), "GET", "/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp StateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SessionID != "session-1" {
		t.Errorf("expected session-1, got %q", resp.SessionID)
	}
	if resp.Status.State.CurrentStep != 4 || !resp.Status.State.GateOpen {
		t.Errorf("unexpected state %+v", resp.Status.State)
	}
}

func TestSessionControls(t *testing.T) {
	tests := []struct {
		path  string
		body  string
		call  string
		event string
	}{
		{"/session/advance", "", "advance", "operator.advance"},
		{"/session/skip", "", "skip", "operator.skip"},
		{"/session/action", `{"action":"inflate"}`, "action inflate", "operator.action"},
		{"/session/grab", `{"hand":"right","item":"syringe"}`, "grab right syringe", "operator.action"},
		{"/session/release", `{"hand":"right"}`, "release right", "operator.action"},
		{"/session/restart", "", "restart", "operator.action"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			events.Clear()
			sess := &fakeSession{}
			w := do(newTestServer(sess), "POST", tt.path, tt.body)

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			if len(sess.calls) != 1 || sess.calls[0] != tt.call {
				t.Errorf("expected call %q, got %v", tt.call, sess.calls)
			}
			snap := events.Snapshot()
			if len(snap) != 1 || snap[0].Name != tt.event {
				t.Errorf("expected one %s event, got %+v", tt.event, snap)
			}
		})
	}
}

func TestSessionControlErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		err  error
		want int
	}{
		{"gate closed", "/session/advance", "", orchestrator.ErrGateClosed, http.StatusConflict},
		{"wrong step", "/session/action", `{"action":"inflate"}`, fmt.Errorf("confirm: %w", orchestrator.ErrWrongStep), http.StatusConflict},
		{"skip unavailable", "/session/skip", "", orchestrator.ErrSkipUnavailable, http.StatusConflict},
		{"complete", "/session/advance", "", orchestrator.ErrSessionComplete, http.StatusConflict},
		{"not started", "/session/advance", "", orchestrator.ErrNotStarted, http.StatusServiceUnavailable},
		{"loop stopped", "/session/advance", "", session.ErrStopped, http.StatusServiceUnavailable},
		{"other", "/session/advance", "", errors.New("boom"), http.StatusInternalServerError},
		{"bad json", "/session/action", "{", nil, http.StatusBadRequest},
		{"missing action", "/session/action", `{}`, nil, http.StatusBadRequest},
		{"missing hand", "/session/grab", `{"item":"catheter"}`, nil, http.StatusBadRequest},
		{"unknown item", "/session/grab", `{"hand":"left","item":"scalpel"}`, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events.Clear()
			w := do(newTestServer(&fakeSession{err: tt.err}), "POST", tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
			var resp OperatorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.OK || resp.Error == "" {
				t.Errorf("expected an error response, got %+v", resp)
			}
			if len(events.Snapshot()) != 0 {
				t.Error("failed controls must not emit operator events")
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	w := do(newTestServer(&fakeSession{}), "GET", "/session/advance", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	events.Clear()
	events.Emit("info", "step.entered", "", map[string]interface{}{"step": 0})

	w := do(newTestServer(&fakeSession{}), "GET", "/events", "")
	var got []events.Event
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 1 || got[0].Name != "step.entered" {
		t.Errorf("unexpected events %+v", got)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	h := newTestServer(&fakeSession{})
	if w := do(h, "GET", "/sessions", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without history, got %d", w.Code)
	}
	if w := do(h, "GET", "/events?session=abc", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without history, got %d", w.Code)
	}

	hist := &fakeHistory{
		rows:    []postgres.EventRow{{EventID: 7, Event: "gate.opened"}},
		summary: []postgres.SessionSummary{{SessionID: "abc", Completed: true, Events: 42}},
	}
	h = newTestServer(&fakeSession{}, func(o *Options) { o.History = hist })

	w := do(h, "GET", "/events?session=abc&limit=25", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if hist.gotID != "abc" || hist.gotLim != 25 {
		t.Errorf("unexpected query id=%q limit=%d", hist.gotID, hist.gotLim)
	}
	var rows []postgres.EventRow
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil || len(rows) != 1 || rows[0].EventID != 7 {
		t.Errorf("unexpected rows %+v (err %v)", rows, err)
	}

	w = do(h, "GET", "/sessions", "")
	var list []postgres.SessionSummary
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil || len(list) != 1 || !list[0].Completed {
		t.Errorf("unexpected sessions %+v (err %v)", list, err)
	}

	hist.err = errors.New("db down")
	if w := do(h, "GET", "/sessions", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on query failure, got %d", w.Code)
	}
}

func TestRestartRequiresAdmin(t *testing.T) {
	sess := &fakeSession{}
	auth := NewAuth(config.Secrets{AdminUser: "admin", AdminPass: "secret", OperatorUser: "op", OperatorPass: "pw"})
	h := newTestServer(sess, func(o *Options) { o.Auth = auth })

	req := httptest.NewRequest("POST", "/session/restart", nil)
	req.SetBasicAuth("op", "pw")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for operator, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/session/advance", nil)
	req.SetBasicAuth("op", "pw")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for operator advance, got %d", w.Code)
	}

	if w := do(h, "GET", "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health must stay open, got %d", w.Code)
	}
	if len(sess.calls) != 1 || sess.calls[0] != "advance" {
		t.Errorf("unexpected calls %v", sess.calls)
	}
}
