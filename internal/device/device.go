package device

import (
	"fmt"
	"strings"
)

// Default control-socket ports on webOS TVs
const (
	LegacyPort = 3000 // plain ws://
	SecurePort = 3001 // wss:// with a self-signed certificate
)

// ConnectionState is the lifecycle state of the control session
type ConnectionState string

const (
	Disconnected ConnectionState = "DISCONNECTED"
	Connecting   ConnectionState = "CONNECTING"
	Pairing      ConnectionState = "PAIRING"
	Connected    ConnectionState = "CONNECTED"
	Error        ConnectionState = "ERROR"
)

// String returns the state name, treating the zero value as DISCONNECTED
func (s ConnectionState) String() string {
	if s == "" {
		return string(Disconnected)
	}
	return string(s)
}

// DiscoveredDevice is a TV found during one discovery pass.
// A later pass with the same IP produces a new value; existing values are never mutated.
type DiscoveredDevice struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IPAddress    string `json:"ip_address"`
	Port         int    `json:"port"`
	ModelName    string `json:"model_name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	UUID         string `json:"uuid,omitempty"`
	Location     string `json:"location,omitempty"` // device-description URL
	IsLGTV       bool   `json:"is_lg_tv"`
}

// TVDevice converts the discovery record into a connection target
func (d DiscoveredDevice) TVDevice() TVDevice {
	port := d.Port
	if port == 0 {
		port = SecurePort
	}
	return TVDevice{
		ID:        d.ID,
		Name:      d.Name,
		IPAddress: d.IPAddress,
		Port:      port,
	}
}

// TVDevice is the target of a connect call
type TVDevice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
	Connected bool   `json:"connected"`
}

// ManualTVDevice builds a target for an IP address typed in by the user
func ManualTVDevice(ip string) TVDevice {
	return TVDevice{
		ID:        "lg_tv_1",
		Name:      "LG TV",
		IPAddress: ip,
		Port:      SecurePort,
	}
}

// Address returns host:port for the device
func (d TVDevice) Address() string {
	port := d.Port
	if port == 0 {
		port = LegacyPort
	}
	if strings.Contains(d.IPAddress, ":") {
		return fmt.Sprintf("[%s]:%d", d.IPAddress, port)
	}
	return fmt.Sprintf("%s:%d", d.IPAddress, port)
}

// SynthesizeID builds the fallback identifier used when a TV reports no USN/UDN
func SynthesizeID(ip string) string {
	if ip == "" {
		return "lg_unknown"
	}
	return "lg_" + strings.NewReplacer(".", "_", ":", "_").Replace(ip)
}
