package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"webos_remote/internal/device"
)

type fakeMessage struct {
	topic   string
	payload string
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return []byte(m.payload) }
func (m fakeMessage) Ack()              {}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeBroker records publishes; other paho.Client methods are not used
type fakeBroker struct {
	paho.Client
	mu   sync.Mutex
	msgs []published
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

type fakeController struct {
	mu           sync.Mutex
	commands     []string
	codes        []string
	targets      []device.TVDevice
	disconnected int
	connected    chan struct{}
}

func (f *fakeController) Connect(ctx context.Context, tv device.TVDevice) error {
	f.mu.Lock()
	f.targets = append(f.targets, tv)
	f.mu.Unlock()
	f.connected <- struct{}{}
	return nil
}

func (f *fakeController) SendPairingCode(code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeController) SendCommand(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, name)
	return nil
}

func (f *fakeController) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected++
}

func newTestBridge(t *testing.T) (*Client, *fakeController, *fakeBroker) {
	t.Helper()
	ctrl := &fakeController{connected: make(chan struct{}, 1)}
	c := NewClient(Config{Host: "localhost", Port: 1883, ClientID: "test", BaseTopic: "tv/"}, ctrl)
	broker := &fakeBroker{}
	c.client = broker
	c.connected = true
	t.Cleanup(c.cancel)
	return c, ctrl, broker
}

func TestCommandTopics(t *testing.T) {
	c, ctrl, _ := newTestBridge(t)

	c.handleMessage(nil, fakeMessage{"tv/command", "VOLUMEUP"})
	c.handleMessage(nil, fakeMessage{"tv/voice", "bajar volumen"})
	c.handleMessage(nil, fakeMessage{"tv/voice", "haz magia"})
	c.handleMessage(nil, fakeMessage{"tv/command", "hola"})
	c.handleMessage(nil, fakeMessage{"tv/command", "  "})
	c.handleMessage(nil, fakeMessage{"tv/pairing", "4321\n"})
	c.handleMessage(nil, fakeMessage{"tv/disconnect", ""})

	want := []string{"VOLUMEUP", "VOLUMEDOWN", "haz magia", "hola"}
	if len(ctrl.commands) != len(want) {
		t.Fatalf("commands = %v, want %v", ctrl.commands, want)
	}
	for i := range want {
		if ctrl.commands[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, ctrl.commands[i], want[i])
		}
	}
	if len(ctrl.codes) != 1 || ctrl.codes[0] != "4321" {
		t.Errorf("codes = %v", ctrl.codes)
	}
	if ctrl.disconnected != 1 {
		t.Errorf("disconnects = %d", ctrl.disconnected)
	}
}

func TestConnectTopic(t *testing.T) {
	c, ctrl, _ := newTestBridge(t)

	c.handleMessage(nil, fakeMessage{"tv/connect", "192.168.1.50:3000"})
	select {
	case <-ctrl.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("Connect never called")
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if tv := ctrl.targets[0]; tv.IPAddress != "192.168.1.50" || tv.Port != 3000 {
		t.Errorf("target = %+v", tv)
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		ip      string
		port    int
		wantErr bool
	}{
		{"192.168.1.50", "192.168.1.50", 3001, false},
		{"192.168.1.50:3000", "192.168.1.50", 3000, false},
		{"[fe80::1]:3001", "fe80::1", 3001, false},
		{"fe80::1", "fe80::1", 3001, false},
		{"", "", 0, true},
		{"10.0.0.1:http", "", 0, true},
		{"10.0.0.1:70000", "", 0, true},
	}
	for _, tt := range tests {
		tv, err := ParseTarget(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTarget(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && (tv.IPAddress != tt.ip || tv.Port != tt.port) {
			t.Errorf("ParseTarget(%q) = %+v", tt.in, tv)
		}
	}
}

func TestPublishRetained(t *testing.T) {
	c, _, broker := newTestBridge(t)

	c.PublishState(device.Pairing, "")
	c.PublishDevices(nil)

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if len(broker.msgs) != 2 {
		t.Fatalf("published %d messages", len(broker.msgs))
	}
	state := broker.msgs[0]
	if state.topic != "tv/state" || !state.retained {
		t.Errorf("state publish = %+v", state)
	}
	var body map[string]any
	json.Unmarshal(state.payload, &body)
	if body["state"] != "PAIRING" {
		t.Errorf("state payload = %s", state.payload)
	}
	if devices := broker.msgs[1]; devices.topic != "tv/devices" || string(devices.payload) != "[]" {
		t.Errorf("devices publish = %s %s", devices.topic, devices.payload)
	}
}

func TestPublishSkippedWhileOffline(t *testing.T) {
	c, _, broker := newTestBridge(t)
	c.connected = false

	c.PublishState(device.Connected, "")
	if len(broker.msgs) != 0 {
		t.Errorf("published while offline: %v", broker.msgs)
	}
}
