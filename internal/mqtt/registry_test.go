package mqtt

import (
	"testing"

	"github.com/AaronLay10/FoleySim/internal/scene"
)

func TestControllerRegistry_RegisterAndGet(t *testing.T) {
	r := NewControllerRegistry()
	r.Register(&RegisteredHand{Hand: "left", HeadsetID: "quest-01", Capabilities: []string{"grab"}})

	h := r.Get("left")
	if h == nil {
		t.Fatal("expected hand to be registered")
	}
	if h.HeadsetID != "quest-01" {
		t.Errorf("expected headset quest-01, got %s", h.HeadsetID)
	}

	h.Capabilities[0] = "mutated"
	if r.Get("left").Capabilities[0] != "grab" {
		t.Error("Get must return a copy")
	}

	if r.Get("right") != nil {
		t.Error("expected nil for unknown hand")
	}
	if !r.Exists("left") || r.Exists("right") {
		t.Error("Exists mismatch")
	}

	r.Unregister("left")
	if r.Exists("left") {
		t.Error("expected hand removed")
	}
}

func TestControllerRegistry_RegisterFromPayloadReplacesHeadsetHands(t *testing.T) {
	r := NewControllerRegistry()
	r.Register(&RegisteredHand{Hand: "hip", HeadsetID: "quest-01"})
	r.Register(&RegisteredHand{Hand: "tracker", HeadsetID: "other"})

	payload, err := ParseRegistration([]byte(validRegistration))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r.RegisterFromPayload(payload)

	got := r.HandsOf("quest-01")
	want := []scene.ControllerID{"left", "right"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("HandsOf = %v, want %v", got, want)
	}
	if !r.Exists("tracker") {
		t.Error("other headsets' hands must be kept")
	}
	if len(r.All()) != 3 {
		t.Errorf("expected 3 hands, got %d", len(r.All()))
	}

	r.Clear()
	if len(r.All()) != 0 {
		t.Error("expected empty registry after Clear")
	}
}
