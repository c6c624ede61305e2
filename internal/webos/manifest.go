package webos

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest identifies this app to the TV during registration. The
// permission list is tuned against real firmware, so it can be overridden
// from a YAML file instead of being fixed in code.
type Manifest struct {
	ManifestVersion int            `json:"manifestVersion" yaml:"manifest_version"`
	AppVersion      string         `json:"appVersion" yaml:"app_version"`
	Signed          SignedManifest `json:"signed" yaml:"signed"`
	Permissions     []string       `json:"permissions" yaml:"permissions"`
}

// SignedManifest is the vendor-signed part of the manifest
type SignedManifest struct {
	Created              string            `json:"created" yaml:"created"`
	AppID                string            `json:"appId" yaml:"app_id"`
	VendorID             string            `json:"vendorId" yaml:"vendor_id"`
	LocalizedAppNames    map[string]string `json:"localizedAppNames" yaml:"localized_app_names"`
	LocalizedVendorNames map[string]string `json:"localizedVendorNames" yaml:"localized_vendor_names"`
	Permissions          []string          `json:"permissions" yaml:"permissions"`
	Serial               string            `json:"serial" yaml:"serial"`
}

var defaultPermissions = []string{
	"TEST_SECURE",
	"CONTROL_INPUT_TV",
	"CONTROL_POWER",
	"READ_APP_STATUS",
	"READ_CURRENT_CHANNEL",
	"READ_INSTALLED_APPS",
	"READ_NETWORK_STATE",
	"READ_RUNNING_APPS",
	"READ_TV_CHANNEL_LIST",
	"WRITE_NOTIFICATION_TOAST",
}

// DefaultManifest returns the manifest sent when no override is configured
func DefaultManifest() Manifest {
	return Manifest{
		ManifestVersion: 1,
		AppVersion:      "1.1",
		Signed: SignedManifest{
			Created:  "20140509",
			AppID:    "com.lge.test",
			VendorID: "com.lge",
			LocalizedAppNames: map[string]string{
				"":       "LG Remote App",
				"ko-KR":  "리모컨 앱",
				"zxx-XX": "ЛГ Rэмotэ AПП",
			},
			LocalizedVendorNames: map[string]string{
				"": "LG Electronics",
			},
			Permissions: append([]string(nil), defaultPermissions...),
			Serial:      "2f930e2d2cfe083771f68e4fe7bb07",
		},
		Permissions: append([]string(nil), defaultPermissions...),
	}
}

// LoadManifest reads a YAML manifest override. Fields absent from the file
// keep their default values.
func LoadManifest(path string) (Manifest, error) {
	m := DefaultManifest()
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return DefaultManifest(), fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}
