package api

import "sync"

// Readiness tracks the dependencies the simulator needs before it can
// serve a learner. MQTT and PostgreSQL may be marked optional.
type Readiness struct {
	mu                sync.RWMutex
	orchestratorReady bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

// CheckStatus is the state of one dependency.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

// ReadinessResponse is the body of GET /ready.
type ReadinessResponse struct {
	Ready  bool                   `json:"ready"`
	Checks map[string]CheckStatus `json:"checks"`
}

func NewReadiness() *Readiness {
	return &Readiness{}
}

func (r *Readiness) SetOrchestratorReady(ready bool) {
	r.mu.Lock()
	r.orchestratorReady = ready
	r.mu.Unlock()
}

func (r *Readiness) SetMQTT(connected, optional bool) {
	r.mu.Lock()
	r.mqttConnected = connected
	r.mqttOptional = optional
	r.mu.Unlock()
}

func (r *Readiness) SetMQTTConnected(connected bool) {
	r.mu.Lock()
	r.mqttConnected = connected
	r.mu.Unlock()
}

func (r *Readiness) SetPostgres(connected, optional bool) {
	r.mu.Lock()
	r.postgresConnected = connected
	r.postgresOptional = optional
	r.mu.Unlock()
}

func (r *Readiness) MQTTConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mqttConnected
}

func (r *Readiness) PostgresConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.postgresConnected
}

// Check evaluates every dependency. An optional dependency that is down
// reports "unavailable" without failing readiness.
func (r *Readiness) Check() ReadinessResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: map[string]CheckStatus{}}
	add := func(name string, ok, optional bool) {
		switch {
		case ok:
			resp.Checks[name] = CheckStatus{Status: "ok", Optional: optional}
		case optional:
			resp.Checks[name] = CheckStatus{Status: "unavailable", Optional: true}
		default:
			resp.Checks[name] = CheckStatus{Status: "not_ready"}
			resp.Ready = false
		}
	}
	add("orchestrator", r.orchestratorReady, false)
	add("mqtt", r.mqttConnected, r.mqttOptional)
	add("postgres", r.postgresConnected, r.postgresOptional)
	return resp
}
