package mqtt

import (
	"sort"
	"sync"

	"github.com/AaronLay10/FoleySim/internal/scene"
)

// RegisteredHand holds runtime information about a hand controller.
type RegisteredHand struct {
	Hand         scene.ControllerID
	HeadsetID    string
	Capabilities []string
}

// ControllerRegistry maps hand controllers to the headset that reported them.
type ControllerRegistry struct {
	mu    sync.RWMutex
	hands map[scene.ControllerID]*RegisteredHand
}

// NewControllerRegistry creates an empty registry.
func NewControllerRegistry() *ControllerRegistry {
	return &ControllerRegistry{
		hands: make(map[scene.ControllerID]*RegisteredHand),
	}
}

// Register adds or updates a hand.
func (r *ControllerRegistry) Register(h *RegisteredHand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hands[h.Hand] = h
}

// Unregister removes a hand.
func (r *ControllerRegistry) Unregister(hand scene.ControllerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hands, hand)
}

// Get returns a copy of a hand, or nil if not registered.
func (r *ControllerRegistry) Get(hand scene.ControllerID) *RegisteredHand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.hands[hand]; ok {
		cpy := *h
		cpy.Capabilities = append([]string{}, h.Capabilities...)
		return &cpy
	}
	return nil
}

// Exists returns true if the hand is registered.
func (r *ControllerRegistry) Exists(hand scene.ControllerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hands[hand]
	return ok
}

// HandsOf returns the hands a headset reported, sorted.
func (r *ControllerRegistry) HandsOf(headsetID string) []scene.ControllerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []scene.ControllerID
	for id, h := range r.hands {
		if h.HeadsetID == headsetID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns copies of every registered hand, sorted by id.
func (r *ControllerRegistry) All() []*RegisteredHand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*RegisteredHand, 0, len(r.hands))
	for _, h := range r.hands {
		cpy := *h
		cpy.Capabilities = append([]string{}, h.Capabilities...)
		result = append(result, &cpy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Hand < result[j].Hand })
	return result
}

// RegisterFromPayload replaces a headset's hands with those in payload.
func (r *ControllerRegistry) RegisterFromPayload(payload *RegistrationPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, h := range r.hands {
		if h.HeadsetID == payload.Headset.ID {
			delete(r.hands, id)
		}
	}
	for _, h := range payload.Hands {
		r.hands[h.Hand] = &RegisteredHand{
			Hand:         h.Hand,
			HeadsetID:    payload.Headset.ID,
			Capabilities: append([]string{}, h.Capabilities...),
		}
	}
}

// Clear removes all hands.
func (r *ControllerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hands = make(map[scene.ControllerID]*RegisteredHand)
}
