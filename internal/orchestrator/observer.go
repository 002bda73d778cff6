package orchestrator

import (
	"github.com/AaronLay10/FoleySim/internal/events"
	"github.com/AaronLay10/FoleySim/internal/scene"
)

// Observer receives the sequencer's outbound notifications. Calls arrive
// synchronously while the sequencer is busy, so implementations must not
// call back into it.
type Observer interface {
	StepChanged(ordinal int, prompt string)
	GateOpened(ordinal int)
	Feedback(message string, isError bool)
	FeedbackCleared()
	ItemStateChanged(id scene.ObjectID, visible bool)
	Composed(output scene.ObjectID)
	Grab(cid scene.ControllerID, id scene.ObjectID, started bool)
	Hints(ids []scene.ObjectID)
}

// NopObserver ignores everything. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) StepChanged(int, string) {}
func (NopObserver) GateOpened(int) {}
func (NopObserver) Feedback(string, bool) {}
func (NopObserver) FeedbackCleared() {}
func (NopObserver) ItemStateChanged(scene.ObjectID, bool) {}
func (NopObserver) Composed(scene.ObjectID) {}
func (NopObserver) Grab(scene.ControllerID, scene.ObjectID, bool) {}
func (NopObserver) Hints([]scene.ObjectID) {}

// Observers fans notifications out in order.
type Observers []Observer

func (o Observers) StepChanged(ordinal int, prompt string) {
	for _, ob := range o {
		ob.StepChanged(ordinal, prompt)
	}
}

func (o Observers) GateOpened(ordinal int) {
	for _, ob := range o {
		ob.GateOpened(ordinal)
	}
}

func (o Observers) Feedback(message string, isError bool) {
	for _, ob := range o {
		ob.Feedback(message, isError)
	}
}

func (o Observers) FeedbackCleared() {
	for _, ob := range o {
		ob.FeedbackCleared()
	}
}

func (o Observers) ItemStateChanged(id scene.ObjectID, visible bool) {
	for _, ob := range o {
		ob.ItemStateChanged(id, visible)
	}
}

func (o Observers) Composed(output scene.ObjectID) {
	for _, ob := range o {
		ob.Composed(output)
	}
}

func (o Observers) Grab(cid scene.ControllerID, id scene.ObjectID, started bool) {
	for _, ob := range o {
		ob.Grab(cid, id, started)
	}
}

func (o Observers) Hints(ids []scene.ObjectID) {
	for _, ob := range o {
		ob.Hints(ids)
	}
}

// EventObserver turns notifications into allow-listed events, which feed
// the ring buffer, WebSocket subscribers and the event log.
type EventObserver struct{}

func (EventObserver) StepChanged(ordinal int, prompt string) {
	events.Emit("info", "step.entered", prompt, map[string]interface{}{"step": ordinal})
}

func (EventObserver) GateOpened(ordinal int) {
	events.Emit("info", "gate.opened", "", map[string]interface{}{"step": ordinal})
}

func (EventObserver) Feedback(message string, isError bool) {
	level := "info"
	if isError {
		level = "warn"
	}
	events.Emit(level, "feedback.shown", message, map[string]interface{}{"is_error": isError})
}

func (EventObserver) FeedbackCleared() {
	events.Emit("info", "feedback.cleared", "", nil)
}

func (EventObserver) ItemStateChanged(id scene.ObjectID, visible bool) {
	events.Emit("info", "item.state_changed", "", map[string]interface{}{
		"item":    id.String(),
		"visible": visible,
	})
}

func (EventObserver) Composed(output scene.ObjectID) {
	events.Emit("info", "compose.completed", "", map[string]interface{}{"output": output.String()})
}

func (EventObserver) Grab(cid scene.ControllerID, id scene.ObjectID, started bool) {
	name := "grab.ended"
	if started {
		name = "grab.started"
	}
	fields := map[string]interface{}{"controller": string(cid)}
	if id != scene.NoObject {
		fields["item"] = id.String()
	}
	events.Emit("info", name, "", fields)
}

func (EventObserver) Hints(ids []scene.ObjectID) {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.String())
	}
	events.Emit("info", "indicator.changed", "", map[string]interface{}{"items": names})
}
