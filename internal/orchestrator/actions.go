package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/FoleySim/internal/events"
)

// CueKind names a class of media the headset plays.
type CueKind string

const (
	CueNarration CueKind = "narration"
	CueVideo     CueKind = "video"
	CueSFX       CueKind = "sfx"
)

// Cue is one audio or video playback request.
type Cue struct {
	Kind CueKind `json:"kind"`
	Path string  `json:"path"`
	Step int     `json:"step"`
}

// CuePlayer plays media on the presentation side. The sequencer never
// decodes media itself.
type CuePlayer interface {
	Play(c Cue) error
	CancelAll() error
}

// Publisher is the outbound half of the MQTT client.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, payload []byte) error
}

// CueExecutor publishes cues to the headset over MQTT.
type CueExecutor struct {
	client Publisher
	topic  string
}

// NewCueExecutor creates an executor publishing to topic.
func NewCueExecutor(client Publisher, topic string) *CueExecutor {
	return &CueExecutor{client: client, topic: topic}
}

// Play publishes a play command.
func (e *CueExecutor) Play(c Cue) error {
	if c.Path == "" {
		return e.emitCueError(c, "missing cue path")
	}
	if err := e.publish(map[string]interface{}{"command": "play", "cue": c}); err != nil {
		return e.emitCueError(c, err.Error())
	}
	events.Emit("info", "cue.play", "", map[string]interface{}{
		"kind": string(c.Kind),
		"path": c.Path,
		"step": c.Step,
	})
	return nil
}

// CancelAll stops every outstanding narration, video and effect.
func (e *CueExecutor) CancelAll() error {
	if err := e.publish(map[string]interface{}{"command": "cancel_all"}); err != nil {
		return e.emitCueError(Cue{}, err.Error())
	}
	events.Emit("info", "cue.cancel", "", nil)
	return nil
}

func (e *CueExecutor) publish(cmd map[string]interface{}) error {
	if e.topic == "" {
		return fmt.Errorf("no cue topic configured")
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal cue: %w", err)
	}
	if e.client == nil || !e.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if err := e.client.Publish(e.topic, payload); err != nil {
		return fmt.Errorf("MQTT publish failed: %w", err)
	}
	return nil
}

// emitCueError emits a cue.error event with context and returns an error.
func (e *CueExecutor) emitCueError(c Cue, msg string) error {
	fields := map[string]interface{}{
		"error": msg,
		"topic": e.topic,
	}
	if c.Path != "" {
		fields["path"] = c.Path
		fields["kind"] = string(c.Kind)
	}
	events.Emit("error", "cue.error", msg, fields)
	return fmt.Errorf("%s", msg)
}

// NopCuePlayer discards cues.
type NopCuePlayer struct{}

func (NopCuePlayer) Play(Cue) error { return nil }
func (NopCuePlayer) CancelAll() error { return nil }
