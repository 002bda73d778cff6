package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/events"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/spatial"
)

// Input message types sent by the headset.
const (
	InputGrabStart = "grab_start"
	InputGrabEnd   = "grab_end"
	InputPose      = "pose"
	InputConfirm   = "confirm"
	InputAdvance   = "advance"
	InputSkip      = "skip"
)

// InputMessage is one headset input on <prefix>/headset/<id>/input.
type InputMessage struct {
	Type     string             `json:"type"`
	Hand     scene.ControllerID `json:"hand,omitempty"`
	Item     string             `json:"item,omitempty"`
	Action   string             `json:"action,omitempty"`
	Position []float64          `json:"position,omitempty"`
	Rotation []float64          `json:"rotation,omitempty"` // x, y, z, w
}

// DecodeInput parses and checks an input message.
func DecodeInput(data []byte) (InputMessage, error) {
	var m InputMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid input JSON: %w", err)
	}
	switch m.Type {
	case InputGrabStart:
		if m.Hand == "" || m.Item == "" {
			return m, fmt.Errorf("grab_start needs hand and item")
		}
	case InputGrabEnd, InputPose:
		if m.Hand == "" {
			return m, fmt.Errorf("%s needs hand", m.Type)
		}
	case InputConfirm:
		if m.Action == "" {
			return m, fmt.Errorf("confirm needs action")
		}
	case InputAdvance, InputSkip:
	default:
		return m, fmt.Errorf("unknown input type %q", m.Type)
	}
	return m, nil
}

// Pose converts the position and rotation fields. A missing rotation is
// the identity.
func (m InputMessage) Pose() (spatial.Pose, error) {
	if len(m.Position) != 3 {
		return spatial.Pose{}, fmt.Errorf("position: want 3 values, got %d", len(m.Position))
	}
	pose := spatial.PoseAt(mgl64.Vec3{m.Position[0], m.Position[1], m.Position[2]})
	switch len(m.Rotation) {
	case 0:
	case 4:
		q := mgl64.Quat{W: m.Rotation[3], V: mgl64.Vec3{m.Rotation[0], m.Rotation[1], m.Rotation[2]}}
		if q.Len() == 0 {
			return spatial.Pose{}, fmt.Errorf("rotation: zero quaternion")
		}
		pose.Rotation = q.Normalize()
	default:
		return spatial.Pose{}, fmt.Errorf("rotation: want 4 values, got %d", len(m.Rotation))
	}
	return pose, nil
}

// InputSink receives decoded inputs. The session loop implements it.
type InputSink interface {
	GrabStart(cid scene.ControllerID, id scene.ObjectID) error
	GrabEnd(cid scene.ControllerID) error
	UpdateController(cid scene.ControllerID, pose spatial.Pose) error
	ConfirmAction(name string) error
	Advance() error
	Skip() error
}

// Subscriber is the subscribing half of the MQTT client.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// InputBridge subscribes to headset topics and forwards them to the
// monitor and the session.
type InputBridge struct {
	mu         sync.RWMutex
	client     Subscriber
	prefix     string
	monitor    *Monitor
	registry   *ControllerRegistry
	sink       InputSink
	log        zerolog.Logger
	subscribed map[string]bool
}

// NewInputBridge creates a bridge for topics under prefix.
func NewInputBridge(client Subscriber, prefix string, monitor *Monitor, registry *ControllerRegistry, sink InputSink, log zerolog.Logger) *InputBridge {
	return &InputBridge{
		client:     client,
		prefix:     strings.TrimSuffix(prefix, "/"),
		monitor:    monitor,
		registry:   registry,
		sink:       sink,
		log:        log,
		subscribed: make(map[string]bool),
	}
}

// RegisterTopic, HeartbeatTopic and InputTopic are the subscription filters.
func (b *InputBridge) RegisterTopic() string { return b.prefix + "/headset/+/register" }
func (b *InputBridge) HeartbeatTopic() string { return b.prefix + "/headset/+/heartbeat" }
func (b *InputBridge) InputTopic() string { return b.prefix + "/headset/+/input" }

// SubscribeAll subscribes to every headset topic. Already subscribed topics
// are skipped, so it is safe to call on every reconnect after
// ClearSubscriptions.
func (b *InputBridge) SubscribeAll() error {
	handlers := map[string]paho.MessageHandler{
		b.RegisterTopic():  b.handleRegister,
		b.HeartbeatTopic(): b.handleHeartbeat,
		b.InputTopic():     b.handleInput,
	}
	for topic, h := range handlers {
		if b.IsSubscribed(topic) {
			continue
		}
		if err := b.client.Subscribe(topic, h); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		b.mu.Lock()
		b.subscribed[topic] = true
		b.mu.Unlock()
	}
	return nil
}

// IsSubscribed returns true if the topic is already subscribed.
func (b *InputBridge) IsSubscribed(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribed[topic]
}

// ClearSubscriptions forgets subscriptions after a disconnect.
func (b *InputBridge) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = make(map[string]bool)
}

// headsetID extracts <id> from <prefix>/headset/<id>/<kind>.
func headsetID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}

func (b *InputBridge) handleRegister(_ paho.Client, msg paho.Message) {
	payload, err := ParseRegistration(msg.Payload())
	if err != nil {
		events.Emit("error", "controller.error", "invalid registration", map[string]interface{}{
			"topic": msg.Topic(),
			"error": err.Error(),
		})
		return
	}
	if id := headsetID(msg.Topic()); id != payload.Headset.ID {
		b.log.Warn().Str("topic", msg.Topic()).Str("headset", payload.Headset.ID).Msg("registration topic does not match headset id")
	}
	res := b.monitor.HandleRegistration(payload)
	for _, w := range res.Warnings {
		b.log.Warn().Str("headset", payload.Headset.ID).Msg(w)
	}
}

func (b *InputBridge) handleHeartbeat(_ paho.Client, msg paho.Message) {
	id := headsetID(msg.Topic())
	if !b.monitor.HandleHeartbeat(id) {
		b.log.Debug().Str("headset", id).Msg("heartbeat from unregistered headset")
	}
}

func (b *InputBridge) handleInput(_ paho.Client, msg paho.Message) {
	id := headsetID(msg.Topic())
	in, err := DecodeInput(msg.Payload())
	if err != nil {
		b.log.Warn().Err(err).Str("headset", id).Msg("dropped input")
		return
	}
	if err := b.Dispatch(id, in); err != nil {
		b.log.Warn().Err(err).Str("headset", id).Str("type", in.Type).Msg("input rejected")
	}
}

// Dispatch forwards a decoded input. Hand inputs must come from a hand the
// headset registered.
func (b *InputBridge) Dispatch(headset string, in InputMessage) error {
	if in.Hand != "" {
		h := b.registry.Get(in.Hand)
		if h == nil || h.HeadsetID != headset {
			return fmt.Errorf("hand %s not registered to headset %s", in.Hand, headset)
		}
	}
	if in.Type != InputPose {
		fields := map[string]interface{}{"headset_id": headset, "type": in.Type}
		if in.Hand != "" {
			fields["hand"] = string(in.Hand)
		}
		if in.Item != "" {
			fields["item"] = in.Item
		}
		if in.Action != "" {
			fields["action"] = in.Action
		}
		events.Emit("info", "controller.input", "", fields)
	}

	switch in.Type {
	case InputGrabStart:
		item, err := scene.ParseObjectID(in.Item)
		if err != nil {
			return err
		}
		return b.sink.GrabStart(in.Hand, item)
	case InputGrabEnd:
		return b.sink.GrabEnd(in.Hand)
	case InputPose:
		pose, err := in.Pose()
		if err != nil {
			return err
		}
		return b.sink.UpdateController(in.Hand, pose)
	case InputConfirm:
		return b.sink.ConfirmAction(in.Action)
	case InputAdvance:
		return b.sink.Advance()
	case InputSkip:
		return b.sink.Skip()
	}
	return fmt.Errorf("unknown input type %q", in.Type)
}
