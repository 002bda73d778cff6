package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/FoleySim/internal/scene"
)

// RegistrationPayload is a v1 headset registration message.
type RegistrationPayload struct {
	Version int                `json:"version"`
	Headset HeadsetInfo        `json:"headset"`
	Hands   []HandRegistration `json:"hands"`
}

// HeadsetInfo contains headset metadata.
type HeadsetInfo struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Firmware     string `json:"firmware"`
	UptimeMS     int64  `json:"uptime_ms"`
	HeartbeatSec int    `json:"heartbeat_sec"`
}

// HandRegistration describes one tracked hand controller.
type HandRegistration struct {
	Hand         scene.ControllerID `json:"hand"`
	Capabilities []string           `json:"capabilities"`
}

// ParseRegistration parses a registration payload from JSON bytes.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}

	if payload.Headset.ID == "" {
		return nil, fmt.Errorf("headset.id is required")
	}

	return &payload, nil
}

// HandSpec is what the simulator expects of a hand controller.
type HandSpec struct {
	Required     bool
	Capabilities []string
}

// DefaultHandSpecs requires both hands to support grabbing.
func DefaultHandSpecs() map[scene.ControllerID]HandSpec {
	return map[scene.ControllerID]HandSpec{
		"left":  {Required: true, Capabilities: []string{"grab"}},
		"right": {Required: true, Capabilities: []string{"grab"}},
	}
}

// ValidationResult contains validation outcome.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateRegistration checks a registration against hand specs.
func ValidateRegistration(payload *RegistrationPayload, specs map[scene.ControllerID]HandSpec) *ValidationResult {
	result := &ValidationResult{Valid: true}

	registered := make(map[scene.ControllerID]*HandRegistration)
	for i := range payload.Hands {
		h := &payload.Hands[i]
		if h.Hand == "" {
			result.Errors = append(result.Errors, "hand with empty id")
			result.Valid = false
			continue
		}
		if _, dup := registered[h.Hand]; dup {
			result.Errors = append(result.Errors, fmt.Sprintf("hand %s registered twice", h.Hand))
			result.Valid = false
			continue
		}
		registered[h.Hand] = h
	}

	for hand, spec := range specs {
		reg, found := registered[hand]
		if !found {
			if spec.Required {
				result.Errors = append(result.Errors, fmt.Sprintf("required hand missing: %s", hand))
				result.Valid = false
			}
			continue
		}
		for _, reqCap := range spec.Capabilities {
			if !containsString(reg.Capabilities, reqCap) {
				result.Errors = append(result.Errors, fmt.Sprintf("hand %s: missing capability %s", hand, reqCap))
				result.Valid = false
			}
		}
	}

	for hand := range registered {
		if _, ok := specs[hand]; !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unrecognized hand: %s", hand))
		}
	}

	return result
}

func containsString(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
