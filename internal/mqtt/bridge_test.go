package mqtt

import (
	"errors"
	"strings"
	"sync"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/spatial"
)

// MockMQTTClient is a mock MQTT client for testing subscriptions.
type MockMQTTClient struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	subscribeErr  error
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		subscriptions: make(map[string]paho.MessageHandler),
	}
}

func (m *MockMQTTClient) Subscribe(topic string, handler paho.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions[topic] = handler
	return nil
}

func (m *MockMQTTClient) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscriptions)
}

// SimulateMessage delivers payload on topic to the first matching filter.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) bool {
	m.mu.Lock()
	var handler paho.MessageHandler
	for filter, h := range m.subscriptions {
		if topicMatches(filter, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(nil, &mockMessage{topic: topic, payload: payload})
	return true
}

func topicMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	p := strings.Split(topic, "/")
	if len(f) != len(p) {
		return false
	}
	for i := range f {
		if f[i] != "+" && f[i] != p[i] {
			return false
		}
	}
	return true
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool { return false }
func (m *mockMessage) Qos() byte { return 1 }
func (m *mockMessage) Retained() bool { return false }
func (m *mockMessage) Topic() string { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte { return m.payload }
func (m *mockMessage) Ack() {}

type sinkCall struct {
	kind   string
	hand   scene.ControllerID
	item   scene.ObjectID
	action string
	pose   spatial.Pose
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *recordingSink) add(c sinkCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	return nil
}

func (s *recordingSink) GrabStart(cid scene.ControllerID, id scene.ObjectID) error {
	return s.add(sinkCall{kind: InputGrabStart, hand: cid, item: id})
}

func (s *recordingSink) GrabEnd(cid scene.ControllerID) error {
	return s.add(sinkCall{kind: InputGrabEnd, hand: cid})
}

func (s *recordingSink) UpdateController(cid scene.ControllerID, pose spatial.Pose) error {
	return s.add(sinkCall{kind: InputPose, hand: cid, pose: pose})
}

func (s *recordingSink) ConfirmAction(name string) error {
	return s.add(sinkCall{kind: InputConfirm, action: name})
}

func (s *recordingSink) Advance() error { return s.add(sinkCall{kind: InputAdvance}) }
func (s *recordingSink) Skip() error { return s.add(sinkCall{kind: InputSkip}) }

func newTestBridge(t *testing.T) (*InputBridge, *MockMQTTClient, *recordingSink) {
	t.Helper()
	mock := NewMockMQTTClient()
	reg := NewControllerRegistry()
	mon := NewMonitor(reg, DefaultHandSpecs(), 2.0, 0)
	sink := &recordingSink{}
	b := NewInputBridge(mock, "sim/", mon, reg, sink, zerolog.Nop())
	if err := b.SubscribeAll(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return b, mock, sink
}

func TestInputBridge_SubscribeAllIdempotent(t *testing.T) {
	b, mock, _ := newTestBridge(t)
	if mock.Count() != 3 {
		t.Fatalf("expected 3 subscriptions, got %d", mock.Count())
	}
	for _, topic := range []string{"sim/headset/+/register", "sim/headset/+/heartbeat", "sim/headset/+/input"} {
		if !b.IsSubscribed(topic) {
			t.Errorf("expected %s subscribed", topic)
		}
	}

	mock.subscribeErr = errors.New("must not resubscribe")
	if err := b.SubscribeAll(); err != nil {
		t.Errorf("second SubscribeAll should be a no-op, got %v", err)
	}

	b.ClearSubscriptions()
	if err := b.SubscribeAll(); err == nil {
		t.Error("expected resubscription after ClearSubscriptions")
	}
}

func TestInputBridge_InputRequiresRegisteredHand(t *testing.T) {
	_, mock, sink := newTestBridge(t)

	mock.SimulateMessage("sim/headset/quest-01/input", []byte(`{"type":"grab_start","hand":"right","item":"syringe"}`))
	if len(sink.calls) != 0 {
		t.Fatal("input from an unregistered hand must be dropped")
	}

	mock.SimulateMessage("sim/headset/quest-01/register", []byte(validRegistration))
	mock.SimulateMessage("sim/headset/quest-01/input", []byte(`{"type":"grab_start","hand":"right","item":"syringe"}`))
	mock.SimulateMessage("sim/headset/quest-02/input", []byte(`{"type":"grab_end","hand":"right"}`))

	if len(sink.calls) != 1 {
		t.Fatalf("expected 1 forwarded call, got %d", len(sink.calls))
	}
	c := sink.calls[0]
	if c.kind != InputGrabStart || c.hand != "right" || c.item != scene.SalineSyringe {
		t.Errorf("unexpected call: %+v", c)
	}
}

func TestInputBridge_ForwardsEveryInputType(t *testing.T) {
	_, mock, sink := newTestBridge(t)
	mock.SimulateMessage("sim/headset/quest-01/register", []byte(validRegistration))

	msgs := []string{
		`{"type":"pose","hand":"left","position":[1,0.9,0.3],"rotation":[0,0,0,2]}`,
		`{"type":"grab_end","hand":"left"}`,
		`{"type":"confirm","action":"inflate"}`,
		`{"type":"advance"}`,
		`{"type":"skip"}`,
		`{"type":"teleport"}`,
		`{"type":"grab_start","hand":"left","item":"scalpel"}`,
	}
	for _, m := range msgs {
		mock.SimulateMessage("sim/headset/quest-01/input", []byte(m))
	}

	kinds := make([]string, 0, len(sink.calls))
	for _, c := range sink.calls {
		kinds = append(kinds, c.kind)
	}
	want := []string{InputPose, InputGrabEnd, InputConfirm, InputAdvance, InputSkip}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("forwarded %v, want %v", kinds, want)
	}

	pose := sink.calls[0].pose
	if !pose.Position.ApproxEqual(mgl64.Vec3{1, 0.9, 0.3}) {
		t.Errorf("unexpected position %v", pose.Position)
	}
	if !pose.Rotation.ApproxEqual(mgl64.QuatIdent()) {
		t.Errorf("rotation should be normalised, got %v", pose.Rotation)
	}
	if sink.calls[2].action != "inflate" {
		t.Errorf("unexpected action %q", sink.calls[2].action)
	}
}

func TestInputBridge_HeartbeatRefreshesMonitor(t *testing.T) {
	b, mock, _ := newTestBridge(t)
	mock.SimulateMessage("sim/headset/quest-01/register", []byte(validRegistration))

	before := b.monitor.GetHeadsetState("quest-01").LastSeen
	mock.SimulateMessage("sim/headset/quest-01/heartbeat", []byte(`{}`))
	after := b.monitor.GetHeadsetState("quest-01").LastSeen
	if after.Before(before) {
		t.Error("heartbeat should refresh last seen")
	}
}

func TestDecodeInput(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"grab start", `{"type":"grab_start","hand":"left","item":"catheter"}`, false},
		{"grab start without item", `{"type":"grab_start","hand":"left"}`, true},
		{"pose without hand", `{"type":"pose","position":[0,0,0]}`, true},
		{"confirm without action", `{"type":"confirm"}`, true},
		{"advance", `{"type":"advance"}`, false},
		{"unknown", `{"type":"jump"}`, true},
		{"bad json", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInput([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInputMessagePose(t *testing.T) {
	if _, err := (InputMessage{Position: []float64{1, 2}}).Pose(); err == nil {
		t.Error("expected error for short position")
	}
	if _, err := (InputMessage{Position: []float64{1, 2, 3}, Rotation: []float64{0, 0, 0, 0}}).Pose(); err == nil {
		t.Error("expected error for zero quaternion")
	}
	if _, err := (InputMessage{Position: []float64{1, 2, 3}, Rotation: []float64{0, 0, 1}}).Pose(); err == nil {
		t.Error("expected error for short rotation")
	}
	p, err := (InputMessage{Position: []float64{1, 2, 3}}).Pose()
	if err != nil || !p.Rotation.ApproxEqual(mgl64.QuatIdent()) {
		t.Errorf("expected identity rotation, got %v (%v)", p.Rotation, err)
	}
}
