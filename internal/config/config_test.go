package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"PORT", "TV_IP", "TV_PORT", "TV_SCHEME", "TV_CLIENT_KEY", "TV_INSECURE_TLS",
	"TV_MANIFEST_FILE", "TV_AUTO_CONNECT", "DISCOVERY_WINDOW_MS",
	"DISCOVERY_INTERFACE", "KNOWN_TVS", "MQTT_HOST", "MQTT_PORT",
	"MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_CLIENT_ID", "MQTT_BASE_TOPIC",
}

// clearEnv blanks every setting so a developer's .env or shell does not leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.TVPort != 3001 || !cfg.TVInsecureTLS || cfg.TVAutoConnect {
		t.Errorf("TV defaults = %+v", cfg)
	}
	if cfg.DiscoveryWindow != 5*time.Second {
		t.Errorf("DiscoveryWindow = %v", cfg.DiscoveryWindow)
	}
	if cfg.MQTTPort != 1883 || cfg.MQTTBaseTopic != "webos_remote" {
		t.Errorf("MQTT defaults = %+v", cfg)
	}
	if _, ok := cfg.ManualTV(); ok {
		t.Error("ManualTV set without TV_IP")
	}
	if _, ok := cfg.MQTTConfig(); ok {
		t.Error("MQTT enabled without MQTT_HOST")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TV_IP", "192.168.1.30")
	t.Setenv("TV_PORT", "3000")
	t.Setenv("TV_SCHEME", "WS")
	t.Setenv("TV_INSECURE_TLS", "false")
	t.Setenv("TV_AUTO_CONNECT", "1")
	t.Setenv("DISCOVERY_WINDOW_MS", "1500")
	t.Setenv("MQTT_HOST", "broker.local")
	t.Setenv("MQTT_PORT", "not-a-number")

	cfg := Load()
	tv, ok := cfg.ManualTV()
	if !ok || tv.IPAddress != "192.168.1.30" || tv.Port != 3000 || tv.ID != "lg_tv_1" {
		t.Errorf("ManualTV = %+v, %v", tv, ok)
	}
	if cfg.TVScheme != "ws" || cfg.TVInsecureTLS || !cfg.TVAutoConnect {
		t.Errorf("TV settings = %+v", cfg)
	}
	if cfg.DiscoveryWindow != 1500*time.Millisecond {
		t.Errorf("DiscoveryWindow = %v", cfg.DiscoveryWindow)
	}
	mc, ok := cfg.MQTTConfig()
	if !ok || mc.Host != "broker.local" || mc.Port != 1883 {
		t.Errorf("MQTTConfig = %+v, %v", mc, ok)
	}
}

func TestParseKnownTVs(t *testing.T) {
	tvs := parseKnownTVs("Living Room:192.168.1.20:3000, :192.168.1.21 ,bad,Den:10.0.0.5:x")
	if len(tvs) != 2 {
		t.Fatalf("got %d TVs: %+v", len(tvs), tvs)
	}
	if tvs[0].Name != "Living Room" || tvs[0].Port != 3000 || tvs[0].ID != "lg_192_168_1_20" || !tvs[0].IsLGTV {
		t.Errorf("first = %+v", tvs[0])
	}
	if tvs[1].Name != "LG TV (192.168.1.21)" || tvs[1].Port != 3001 {
		t.Errorf("second = %+v", tvs[1])
	}
	if parseKnownTVs("") != nil {
		t.Error("empty input should give nil")
	}
}

func TestSessionConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("TV_CLIENT_KEY", "abc")
	cfg := Load()
	sc, err := cfg.SessionConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.ClientKey != "abc" || sc.Manifest != nil || !sc.InsecureTLS {
		t.Errorf("SessionConfig = %+v", sc)
	}

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	os.WriteFile(path, []byte("app_version: \"9.9\"\n"), 0o644)
	cfg.TVManifestFile = path
	sc, err = cfg.SessionConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.Manifest == nil || sc.Manifest.AppVersion != "9.9" {
		t.Errorf("manifest = %+v", sc.Manifest)
	}

	cfg.TVManifestFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := cfg.SessionConfig(); err == nil {
		t.Error("missing manifest: want error")
	}

	cfg.TVManifestFile = ""
	cfg.TVScheme = "http"
	if _, err := cfg.SessionConfig(); err == nil {
		t.Error("bad scheme: want error")
	}
}
