package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"webos_remote/internal/device"
)

// Session is the TV session the API drives
type Session interface {
	Connect(ctx context.Context, tv device.TVDevice) error
	SendPairingCode(code string) error
	SendCommand(name string) error
	Disconnect()
	State() device.ConnectionState
	LastError() string
	ClientKey() string
	Target() device.TVDevice
}

// Discoverer runs one discovery window
type Discoverer interface {
	Discover(ctx context.Context) <-chan []device.DiscoveredDevice
}

// DevicesFunc receives every discovery snapshot
type DevicesFunc func([]device.DiscoveredDevice)

// Server serves the remote-control API
type Server struct {
	session     Session
	discoverer  Discoverer
	discovering func() bool
	onDevices   DevicesFunc
	ws          http.Handler

	mu      sync.RWMutex
	devices []device.DiscoveredDevice
}

// Options wires optional collaborators
type Options struct {
	Discovering func() bool  // Reports whether a discovery window is open
	OnDevices   DevicesFunc  // Called with each discovery snapshot
	WebSocket   http.Handler // Served at /ws
}

// NewServer creates the API server
func NewServer(session Session, discoverer Discoverer, opts Options) *Server {
	return &Server{
		session:     session,
		discoverer:  discoverer,
		discovering: opts.Discovering,
		onDevices:   opts.OnDevices,
		ws:          opts.WebSocket,
	}
}

// quietPaths are endpoints that get polled frequently and shouldn't spam logs
var quietPaths = map[string]bool{
	"/api/state":   true,
	"/api/devices": true,
}

// quietPrefixes are path prefixes that shouldn't spam logs
var quietPrefixes = []string{
	"/ws",
}

// ConditionalLogger is a middleware that skips logging for certain paths
func ConditionalLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range quietPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		middleware.Logger(next).ServeHTTP(w, r)
	})
}

// Router returns the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(ConditionalLogger)

	r.Get("/api/state", s.handleState)
	r.Get("/api/commands", s.handleCommands)

	// Discovery
	r.Post("/api/discover", s.handleDiscover)
	r.Get("/api/devices", s.handleDevices)

	// Session
	r.Post("/api/connect", s.handleConnect)
	r.Post("/api/pairing", s.handlePairing)
	r.Post("/api/command/{name}", s.handleCommand)
	r.Post("/api/voice", s.handleVoice)
	r.Post("/api/disconnect", s.handleDisconnect)

	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}
	return r
}

// Devices returns the last discovery result
func (s *Server) Devices() []device.DiscoveredDevice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]device.DiscoveredDevice(nil), s.devices...)
}

// SetDevices records a discovery snapshot and reports it to OnDevices
func (s *Server) SetDevices(devices []device.DiscoveredDevice) {
	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()
	if s.onDevices != nil {
		s.onDevices(devices)
	}
}

func (s *Server) findDevice(id string) (device.DiscoveredDevice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.ID == id {
			return d, true
		}
	}
	return device.DiscoveredDevice{}, false
}
