package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// session
	"session.started":   {},
	"session.completed": {},

	// step
	"step.entered": {},
	"step.skipped": {},
	"gate.opened":  {},

	// feedback
	"feedback.shown":    {},
	"feedback.cleared":  {},
	"indicator.changed": {},

	// items
	"item.state_changed": {},
	"compose.completed":  {},
	"grab.started":       {},
	"grab.ended":         {},

	// cues
	"cue.play":   {},
	"cue.cancel": {},
	"cue.error":  {},

	// operator
	"operator.advance": {},
	"operator.skip":    {},
	"operator.action":  {},

	// controller
	"controller.registered": {},
	"controller.offline":    {},
	"controller.online":     {},
	"controller.input":      {},
	"controller.error":      {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate reports whether event is on the allow-list.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
