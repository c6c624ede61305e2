package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"webos_remote/internal/device"
)

// maxDescriptionSize caps the device-description body we read
const maxDescriptionSize = 256 * 1024

// Description holds the UPnP device-description fields we care about.
// Missing tags are left empty.
type Description struct {
	Manufacturer string
	ModelName    string
	FriendlyName string
	UDN          string
}

// FetchDescription downloads and parses the device description at location
func FetchDescription(ctx context.Context, client *http.Client, location string) (*Description, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	desc := ParseDescription(string(body))
	return &desc, nil
}

// ParseDescription pulls tags out of description XML by substring search.
// Malformed XML simply yields empty fields.
func ParseDescription(xml string) Description {
	return Description{
		Manufacturer: extractTag(xml, "manufacturer"),
		ModelName:    extractTag(xml, "modelName"),
		FriendlyName: extractTag(xml, "friendlyName"),
		UDN:          extractTag(xml, "UDN"),
	}
}

// IsLG reports whether manufacturer, model or friendly name mention LG
func (d Description) IsLG() bool {
	return containsLG(d.Manufacturer) || containsLG(d.ModelName) || containsLG(d.FriendlyName)
}

// Device builds the record for a TV confirmed through its description.
// These TVs are addressed on the legacy port.
func (d Description) Device(ip, location string) device.DiscoveredDevice {
	if ip == "" {
		ip = hostFromLocation(location)
	}
	id := d.UDN
	if id == "" {
		id = device.SynthesizeID(ip)
	}
	name := d.FriendlyName
	if name == "" {
		name = d.ModelName
	}
	if name == "" {
		name = "LG TV"
	}
	return device.DiscoveredDevice{
		ID:           id,
		Name:         name,
		IPAddress:    ip,
		Port:         device.LegacyPort,
		ModelName:    d.ModelName,
		Manufacturer: d.Manufacturer,
		UUID:         strings.TrimPrefix(d.UDN, "uuid:"),
		Location:     location,
		IsLGTV:       true,
	}
}

// extractTag returns the trimmed text between <tag> and </tag>, matching
// the tag name case-insensitively
func extractTag(xml, tag string) string {
	haystack := xml
	open := "<" + tag + ">"
	closing := "</" + tag + ">"
	if lower := strings.ToLower(xml); len(lower) == len(xml) {
		haystack = lower
		open = strings.ToLower(open)
		closing = strings.ToLower(closing)
	}

	start := strings.Index(haystack, open)
	if start == -1 {
		return ""
	}
	valueStart := start + len(open)
	end := strings.Index(haystack[valueStart:], closing)
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(xml[valueStart : valueStart+end])
}

func hostFromLocation(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
