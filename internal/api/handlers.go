package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"webos_remote/internal/device"
	"webos_remote/internal/webos"
)

type stateResponse struct {
	State       device.ConnectionState `json:"state"`
	LastError   string                 `json:"lastError,omitempty"`
	ClientKey   string                 `json:"clientKey,omitempty"`
	Device      *device.TVDevice       `json:"device,omitempty"`
	Discovering bool                   `json:"discovering"`
}

type connectRequest struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	DeviceID string `json:"deviceId"`
}

type pairingRequest struct {
	Code string `json:"code"`
}

type voiceRequest struct {
	Text string `json:"text"`
}

type voiceResponse struct {
	Command string `json:"command"`
	Matched bool   `json:"matched"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeSessionError maps session errors to status codes
func writeSessionError(w http.ResponseWriter, err error) {
	var terr *webos.TransportError
	switch {
	case errors.Is(err, webos.ErrNotConnected):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, webos.ErrSuperseded):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &terr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		State:     s.session.State(),
		LastError: s.session.LastError(),
		ClientKey: s.session.ClientKey(),
	}
	if tv := s.session.Target(); tv.IPAddress != "" {
		resp.Device = &tv
	}
	if s.discovering != nil {
		resp.Discovering = s.discovering()
	}
	writeJSON(w, resp)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, webos.Commands())
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.discoverer == nil {
		http.Error(w, "Discovery not configured", http.StatusServiceUnavailable)
		return
	}
	var final []device.DiscoveredDevice
	for snapshot := range s.discoverer.Discover(r.Context()) {
		final = snapshot
		s.SetDevices(snapshot)
	}
	if final == nil {
		final = []device.DiscoveredDevice{}
	}
	log.Printf("Discovery finished: %d TV(s)", len(final))
	writeJSON(w, final)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.Devices()
	if devices == nil {
		devices = []device.DiscoveredDevice{}
	}
	writeJSON(w, devices)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var tv device.TVDevice
	switch {
	case req.DeviceID != "":
		d, ok := s.findDevice(req.DeviceID)
		if !ok {
			http.Error(w, "Unknown device", http.StatusNotFound)
			return
		}
		tv = d.TVDevice()
	case strings.TrimSpace(req.IP) != "":
		tv = device.ManualTVDevice(strings.TrimSpace(req.IP))
		if req.Port != 0 {
			tv.Port = req.Port
		}
		if req.ID != "" {
			tv.ID = req.ID
		}
		if req.Name != "" {
			tv.Name = req.Name
		}
	default:
		http.Error(w, "ip or deviceId required", http.StatusBadRequest)
		return
	}
	if tv.Port < 0 || tv.Port > 65535 {
		http.Error(w, "Invalid port", http.StatusBadRequest)
		return
	}

	if err := s.session.Connect(r.Context(), tv); err != nil {
		log.Printf("Error connecting to %s: %v", tv.Address(), err)
		writeSessionError(w, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handlePairing(w http.ResponseWriter, r *http.Request) {
	var req pairingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return
	}
	if err := s.session.SendPairingCode(code); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if strings.TrimSpace(name) == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	if !webos.IsKnownCommand(name) {
		log.Printf("Unknown command %q, sending it as a toast", name)
	}
	if err := s.session.SendCommand(name); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text required", http.StatusBadRequest)
		return
	}
	cmd, matched := webos.VoiceCommand(req.Text)
	if err := s.session.SendCommand(cmd); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, voiceResponse{Command: cmd, Matched: matched})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.session.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}
