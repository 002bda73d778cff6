package mqtt

import (
	"sync"
	"time"

	"github.com/AaronLay10/FoleySim/internal/events"
	"github.com/AaronLay10/FoleySim/internal/scene"
)

// HeadsetState tracks a registered headset's health.
type HeadsetState struct {
	HeadsetID    string
	LastSeen     time.Time
	HeartbeatSec int
	Hands        []scene.ControllerID
	Connected    bool
}

// OfflineFunc is called, outside the monitor lock, with the hands of a
// headset that missed its heartbeat.
type OfflineFunc func(headsetID string, hands []scene.ControllerID)

// Monitor tracks headset registration and heartbeats.
type Monitor struct {
	mu             sync.RWMutex
	headsets       map[string]*HeadsetState
	registry       *ControllerRegistry
	specs          map[scene.ControllerID]HandSpec
	tolerance      float64 // multiplier for the heartbeat interval
	defaultTimeout time.Duration
	onOffline      OfflineFunc
	now            func() time.Time
	stopCh         chan struct{}
	wg             sync.WaitGroup
}

// NewMonitor creates a headset monitor. defaultTimeout applies to headsets
// that do not announce a heartbeat interval.
func NewMonitor(registry *ControllerRegistry, specs map[scene.ControllerID]HandSpec, tolerance float64, defaultTimeout time.Duration) *Monitor {
	if tolerance <= 1.0 {
		tolerance = 2.0 // miss one heartbeat
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &Monitor{
		headsets:       make(map[string]*HeadsetState),
		registry:       registry,
		specs:          specs,
		tolerance:      tolerance,
		defaultTimeout: defaultTimeout,
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
}

// OnOffline sets the timeout callback.
func (m *Monitor) OnOffline(fn OfflineFunc) {
	m.mu.Lock()
	m.onOffline = fn
	m.mu.Unlock()
}

// HandleRegistration validates and records a registration.
func (m *Monitor) HandleRegistration(payload *RegistrationPayload) *ValidationResult {
	result := ValidateRegistration(payload, m.specs)
	if !result.Valid {
		events.Emit("error", "controller.error", "registration validation failed", map[string]interface{}{
			"headset_id": payload.Headset.ID,
			"errors":     result.Errors,
		})
		return result
	}

	m.registry.RegisterFromPayload(payload)

	m.mu.Lock()
	id := payload.Headset.ID
	existing, known := m.headsets[id]
	isReconnect := known && !existing.Connected
	hands := make([]scene.ControllerID, 0, len(payload.Hands))
	for _, h := range payload.Hands {
		hands = append(hands, h.Hand)
	}
	m.headsets[id] = &HeadsetState{
		HeadsetID:    id,
		LastSeen:     m.now(),
		HeartbeatSec: payload.Headset.HeartbeatSec,
		Hands:        hands,
		Connected:    true,
	}
	m.mu.Unlock()

	for _, h := range payload.Hands {
		events.Emit("info", "controller.registered", "", map[string]interface{}{
			"headset_id": id,
			"hand":       string(h.Hand),
			"model":      payload.Headset.Model,
			"reconnect":  isReconnect,
		})
	}
	return result
}

// HandleHeartbeat refreshes a headset. Unknown headsets are ignored until
// they register; returns false for them.
func (m *Monitor) HandleHeartbeat(headsetID string) bool {
	m.mu.Lock()
	state, ok := m.headsets[headsetID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	state.LastSeen = m.now()
	cameBack := !state.Connected
	state.Connected = true
	m.mu.Unlock()

	if cameBack {
		events.Emit("info", "controller.online", "", map[string]interface{}{
			"headset_id": headsetID,
		})
	}
	return true
}

// Start begins the background health check loop.
func (m *Monitor) Start(checkInterval time.Duration) {
	m.wg.Add(1)
	go m.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) healthCheckLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Monitor) timeoutFor(state *HeadsetState) time.Duration {
	if state.HeartbeatSec <= 0 {
		return m.defaultTimeout
	}
	return time.Duration(float64(state.HeartbeatSec)*m.tolerance) * time.Second
}

type offline struct {
	id    string
	hands []scene.ControllerID
}

func (m *Monitor) checkHealth() {
	m.mu.Lock()
	now := m.now()
	var lost []offline
	for id, state := range m.headsets {
		if !state.Connected {
			continue
		}
		timeout := m.timeoutFor(state)
		if now.Sub(state.LastSeen) > timeout {
			state.Connected = false
			lost = append(lost, offline{id: id, hands: append([]scene.ControllerID{}, state.Hands...)})
			events.Emit("warn", "controller.offline", "heartbeat timeout", map[string]interface{}{
				"headset_id":  id,
				"last_seen":   state.LastSeen.Format(time.RFC3339),
				"timeout_sec": timeout.Seconds(),
			})
		}
	}
	fn := m.onOffline
	m.mu.Unlock()

	if fn == nil {
		return
	}
	for _, o := range lost {
		fn(o.id, o.hands)
	}
}

// GetHeadsetState returns a copy of a headset's state, or nil.
func (m *Monitor) GetHeadsetState(headsetID string) *HeadsetState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.headsets[headsetID]; ok {
		cpy := *state
		cpy.Hands = append([]scene.ControllerID{}, state.Hands...)
		return &cpy
	}
	return nil
}

// ConnectedHeadsets returns the ids of headsets currently online.
func (m *Monitor) ConnectedHeadsets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, state := range m.headsets {
		if state.Connected {
			ids = append(ids, id)
		}
	}
	return ids
}
