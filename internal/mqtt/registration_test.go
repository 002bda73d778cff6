package mqtt

import (
	"strings"
	"testing"
)

const validRegistration = `{
	"version": 1,
	"headset": {
		"id": "quest-01",
		"model": "quest3",
		"firmware": "62.0",
		"uptime_ms": 123456,
		"heartbeat_sec": 5
	},
	"hands": [
		{"hand": "left", "capabilities": ["grab", "pose"]},
		{"hand": "right", "capabilities": ["grab", "pose"]}
	]
}`

func TestParseRegistration(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{name: "valid v1 registration", json: validRegistration},
		{name: "unsupported version", json: `{"version": 2, "headset": {"id": "quest-01"}}`, wantErr: true},
		{name: "missing headset id", json: `{"version": 1, "headset": {}}`, wantErr: true},
		{name: "invalid JSON", json: `{not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ParseRegistration([]byte(tt.json))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payload.Headset.ID != "quest-01" || payload.Headset.HeartbeatSec != 5 {
				t.Errorf("unexpected headset: %+v", payload.Headset)
			}
			if len(payload.Hands) != 2 || payload.Hands[1].Hand != "right" {
				t.Errorf("unexpected hands: %+v", payload.Hands)
			}
		})
	}
}

func TestValidateRegistration(t *testing.T) {
	specs := DefaultHandSpecs()

	tests := []struct {
		name      string
		hands     []HandRegistration
		valid     bool
		errSubstr string
		warnings  int
	}{
		{
			name:  "both hands",
			hands: []HandRegistration{{Hand: "left", Capabilities: []string{"grab"}}, {Hand: "right", Capabilities: []string{"grab"}}},
			valid: true,
		},
		{
			name:      "missing required hand",
			hands:     []HandRegistration{{Hand: "left", Capabilities: []string{"grab"}}},
			errSubstr: "required hand missing: right",
		},
		{
			name:      "missing capability",
			hands:     []HandRegistration{{Hand: "left"}, {Hand: "right", Capabilities: []string{"grab"}}},
			errSubstr: "missing capability grab",
		},
		{
			name:      "duplicate hand",
			hands:     []HandRegistration{{Hand: "left", Capabilities: []string{"grab"}}, {Hand: "left", Capabilities: []string{"grab"}}, {Hand: "right", Capabilities: []string{"grab"}}},
			errSubstr: "registered twice",
		},
		{
			name: "extra tracker warns",
			hands: []HandRegistration{
				{Hand: "left", Capabilities: []string{"grab"}},
				{Hand: "right", Capabilities: []string{"grab"}},
				{Hand: "hip", Capabilities: []string{"pose"}},
			},
			valid:    true,
			warnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := &RegistrationPayload{Version: 1, Headset: HeadsetInfo{ID: "quest-01"}, Hands: tt.hands}
			res := ValidateRegistration(payload, specs)
			if res.Valid != tt.valid {
				t.Fatalf("valid = %v, want %v (errors %v)", res.Valid, tt.valid, res.Errors)
			}
			if tt.errSubstr != "" && !strings.Contains(strings.Join(res.Errors, ";"), tt.errSubstr) {
				t.Errorf("errors %v do not mention %q", res.Errors, tt.errSubstr)
			}
			if len(res.Warnings) != tt.warnings {
				t.Errorf("expected %d warnings, got %v", tt.warnings, res.Warnings)
			}
		})
	}
}
