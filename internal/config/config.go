package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"webos_remote/internal/device"
	"webos_remote/internal/discovery"
	"webos_remote/internal/mqtt"
	"webos_remote/internal/webos"
)

// Config holds process settings read from the environment
type Config struct {
	Port string

	// TV session
	TVIP           string
	TVPort         int
	TVScheme       string
	TVClientKey    string
	TVInsecureTLS  bool
	TVManifestFile string
	TVAutoConnect  bool

	// Discovery
	DiscoveryWindow    time.Duration
	DiscoveryInterface string
	KnownTVs           []device.DiscoveredDevice

	// MQTT bridge, disabled when MQTTHost is empty
	MQTTHost      string
	MQTTPort      int
	MQTTUsername  string
	MQTTPassword  string
	MQTTClientID  string
	MQTTBaseTopic string
}

// Load reads .env if present, then the environment
func Load() Config {
	// Load .env file if present (for local dev)
	_ = godotenv.Load()

	return Config{
		Port: getEnv("PORT", "8080"),

		TVIP:           getEnv("TV_IP", ""),
		TVPort:         parseIntEnv("TV_PORT", device.SecurePort),
		TVScheme:       strings.ToLower(getEnv("TV_SCHEME", "")),
		TVClientKey:    getEnv("TV_CLIENT_KEY", ""),
		TVInsecureTLS:  parseBoolEnv("TV_INSECURE_TLS", true),
		TVManifestFile: getEnv("TV_MANIFEST_FILE", ""),
		TVAutoConnect:  parseBoolEnv("TV_AUTO_CONNECT", false),

		DiscoveryWindow:    time.Duration(parseIntEnv("DISCOVERY_WINDOW_MS", int(discovery.DefaultWindow/time.Millisecond))) * time.Millisecond,
		DiscoveryInterface: getEnv("DISCOVERY_INTERFACE", ""),
		KnownTVs:           parseKnownTVs(getEnv("KNOWN_TVS", "")),

		MQTTHost:      getEnv("MQTT_HOST", ""),
		MQTTPort:      parseIntEnv("MQTT_PORT", 1883),
		MQTTUsername:  getEnv("MQTT_USERNAME", ""),
		MQTTPassword:  getEnv("MQTT_PASSWORD", ""),
		MQTTClientID:  getEnv("MQTT_CLIENT_ID", "webos-remote"),
		MQTTBaseTopic: getEnv("MQTT_BASE_TOPIC", mqtt.DefaultBaseTopic),
	}
}

// ManualTV returns the configured TV_IP target, if any
func (c Config) ManualTV() (device.TVDevice, bool) {
	if c.TVIP == "" {
		return device.TVDevice{}, false
	}
	tv := device.ManualTVDevice(c.TVIP)
	tv.Port = c.TVPort
	return tv, true
}

// SessionConfig builds the webOS client settings, loading the manifest
// override when one is configured
func (c Config) SessionConfig() (webos.Config, error) {
	cfg := webos.Config{
		Scheme:      c.TVScheme,
		InsecureTLS: c.TVInsecureTLS,
		ClientKey:   c.TVClientKey,
	}
	if c.TVScheme != "" && c.TVScheme != "ws" && c.TVScheme != "wss" {
		return cfg, fmt.Errorf("invalid TV_SCHEME %q", c.TVScheme)
	}
	if c.TVManifestFile != "" {
		m, err := webos.LoadManifest(c.TVManifestFile)
		if err != nil {
			return cfg, err
		}
		cfg.Manifest = &m
	}
	return cfg, nil
}

// DiscoveryOptions builds the SSDP client settings
func (c Config) DiscoveryOptions() discovery.Options {
	return discovery.Options{
		Window:    c.DiscoveryWindow,
		Interface: c.DiscoveryInterface,
		Seed:      c.KnownTVs,
	}
}

// MQTTConfig returns the bridge settings and whether the bridge is enabled
func (c Config) MQTTConfig() (mqtt.Config, bool) {
	return mqtt.Config{
		Host:      c.MQTTHost,
		Port:      c.MQTTPort,
		Username:  c.MQTTUsername,
		Password:  c.MQTTPassword,
		ClientID:  c.MQTTClientID,
		BaseTopic: c.MQTTBaseTopic,
	}, c.MQTTHost != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

// parseKnownTVs parses KNOWN_TVS format: "name:ip:port,name2:ip2". The port
// defaults to 3001.
func parseKnownTVs(s string) []device.DiscoveredDevice {
	if s == "" {
		return nil
	}
	var tvs []device.DiscoveredDevice
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
			log.Printf("Warning: Ignoring KNOWN_TVS entry %q", entry)
			continue
		}
		ip := strings.TrimSpace(parts[1])
		port := device.SecurePort
		if len(parts) == 3 {
			p, err := strconv.Atoi(strings.TrimSpace(parts[2]))
			if err != nil || p <= 0 || p > 65535 {
				log.Printf("Warning: Ignoring KNOWN_TVS entry %q: bad port", entry)
				continue
			}
			port = p
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			name = fmt.Sprintf("LG TV (%s)", ip)
		}
		tvs = append(tvs, device.DiscoveredDevice{
			ID:           device.SynthesizeID(ip),
			Name:         name,
			IPAddress:    ip,
			Port:         port,
			Manufacturer: "LG Electronics",
			IsLGTV:       true,
		})
	}
	return tvs
}
