package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"webos_remote/internal/device"
	"webos_remote/internal/webos"
)

type fakeSession struct {
	mu         sync.Mutex
	state      device.ConnectionState
	lastError  string
	target     device.TVDevice
	commands   []string
	codes      []string
	connectErr error
	sendErr    error
}

func (f *fakeSession) Connect(ctx context.Context, tv device.TVDevice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = tv
	if f.connectErr != nil {
		f.state = device.Error
		return f.connectErr
	}
	f.state = device.Connected
	return nil
}

func (f *fakeSession) SendPairingCode(code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeSession) SendCommand(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.commands = append(f.commands, name)
	return nil
}

func (f *fakeSession) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = device.Disconnected
}

func (f *fakeSession) State() device.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) LastError() string       { return f.lastError }
func (f *fakeSession) ClientKey() string       { return "" }
func (f *fakeSession) Target() device.TVDevice { return f.target }

type fakeDiscoverer struct {
	snapshots [][]device.DiscoveredDevice
}

func (f fakeDiscoverer) Discover(ctx context.Context) <-chan []device.DiscoveredDevice {
	out := make(chan []device.DiscoveredDevice, len(f.snapshots))
	for _, s := range f.snapshots {
		out <- s
	}
	close(out)
	return out
}

var livingRoom = device.DiscoveredDevice{
	ID: "uuid:abc", Name: "Living Room", IPAddress: "192.168.1.20", Port: 3000, IsLGTV: true,
}

func newTestServer(session *fakeSession, disc Discoverer, onDevices DevicesFunc) http.Handler {
	return NewServer(session, disc, Options{OnDevices: onDevices}).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStateEndpoint(t *testing.T) {
	session := &fakeSession{state: device.Pairing}
	h := newTestServer(session, nil, nil)

	rec := do(t, h, http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["state"] != "PAIRING" {
		t.Errorf("body = %s", rec.Body)
	}
	if _, ok := body["device"]; ok {
		t.Error("device reported with no target")
	}
}

func TestDiscoverCachesAndPublishes(t *testing.T) {
	session := &fakeSession{}
	var published [][]device.DiscoveredDevice
	disc := fakeDiscoverer{snapshots: [][]device.DiscoveredDevice{
		{},
		{livingRoom},
	}}
	h := newTestServer(session, disc, func(d []device.DiscoveredDevice) {
		published = append(published, d)
	})

	rec := do(t, h, http.MethodPost, "/api/discover", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var devices []device.DiscoveredDevice
	json.Unmarshal(rec.Body.Bytes(), &devices)
	if len(devices) != 1 || devices[0].IPAddress != "192.168.1.20" {
		t.Errorf("devices = %+v", devices)
	}
	if len(published) != 2 {
		t.Errorf("published %d snapshots, want 2", len(published))
	}

	rec = do(t, h, http.MethodGet, "/api/devices", "")
	if !strings.Contains(rec.Body.String(), "192.168.1.20") {
		t.Errorf("cached devices = %s", rec.Body)
	}
}

func TestDevicesEmptyArray(t *testing.T) {
	h := newTestServer(&fakeSession{}, nil, nil)
	rec := do(t, h, http.MethodGet, "/api/devices", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %s", rec.Body)
	}
	if rec := do(t, h, http.MethodPost, "/api/discover", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("discover without discoverer = %d", rec.Code)
	}
}

func TestConnect(t *testing.T) {
	session := &fakeSession{}
	disc := fakeDiscoverer{snapshots: [][]device.DiscoveredDevice{{livingRoom}}}
	h := newTestServer(session, disc, nil)

	rec := do(t, h, http.MethodPost, "/api/connect", `{"ip":"10.0.0.7"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if session.target.IPAddress != "10.0.0.7" || session.target.Port != 3001 || session.target.ID != "lg_tv_1" {
		t.Errorf("manual target = %+v", session.target)
	}

	do(t, h, http.MethodPost, "/api/discover", "")
	rec = do(t, h, http.MethodPost, "/api/connect", `{"deviceId":"uuid:abc"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if session.target.IPAddress != "192.168.1.20" || session.target.Port != 3000 {
		t.Errorf("discovered target = %+v", session.target)
	}

	tests := []struct {
		body string
		want int
	}{
		{`{"deviceId":"missing"}`, http.StatusNotFound},
		{`{}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
		{`{"ip":"10.0.0.7","port":99999}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := do(t, h, http.MethodPost, "/api/connect", tt.body); rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.body, rec.Code, tt.want)
		}
	}
}

func TestConnectTransportFailure(t *testing.T) {
	session := &fakeSession{connectErr: &webos.TransportError{Op: "dial", Err: fmt.Errorf("connection refused")}}
	h := newTestServer(session, nil, nil)

	rec := do(t, h, http.MethodPost, "/api/connect", `{"ip":"10.0.0.7"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestCommandAndPairing(t *testing.T) {
	session := &fakeSession{state: device.Connected}
	h := newTestServer(session, nil, nil)

	if rec := do(t, h, http.MethodPost, "/api/command/VOLUMEUP", ""); rec.Code != http.StatusNoContent {
		t.Errorf("command status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/command/hello", ""); rec.Code != http.StatusNoContent {
		t.Errorf("unknown command status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/pairing", `{"code":" 1234 "}`); rec.Code != http.StatusNoContent {
		t.Errorf("pairing status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/pairing", `{"code":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty code status = %d", rec.Code)
	}
	// Unknown names still reach the session, which shows them as a toast
	if len(session.commands) != 2 || session.commands[0] != "VOLUMEUP" || session.commands[1] != "hello" {
		t.Errorf("commands = %v", session.commands)
	}
	if len(session.codes) != 1 || session.codes[0] != "1234" {
		t.Errorf("codes = %v", session.codes)
	}

	session.sendErr = webos.ErrNotConnected
	if rec := do(t, h, http.MethodPost, "/api/command/MUTE", ""); rec.Code != http.StatusConflict {
		t.Errorf("not connected status = %d, want 409", rec.Code)
	}
}

func TestVoice(t *testing.T) {
	session := &fakeSession{state: device.Connected}
	h := newTestServer(session, nil, nil)

	rec := do(t, h, http.MethodPost, "/api/voice", `{"text":"Subir volumen"}`)
	var resp voiceResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Command != "VOLUMEUP" || !resp.Matched {
		t.Errorf("resp = %+v", resp)
	}

	rec = do(t, h, http.MethodPost, "/api/voice", `{"text":"haz magia"}`)
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Command != "haz magia" || resp.Matched {
		t.Errorf("resp = %+v", resp)
	}
	if len(session.commands) != 2 || session.commands[1] != "haz magia" {
		t.Errorf("commands = %v", session.commands)
	}
}

func TestDisconnect(t *testing.T) {
	session := &fakeSession{state: device.Error}
	h := newTestServer(session, nil, nil)

	if rec := do(t, h, http.MethodPost, "/api/disconnect", ""); rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if session.State() != device.Disconnected {
		t.Errorf("state = %s", session.State())
	}
}
