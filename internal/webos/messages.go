package webos

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// registerID is the request id of every registration this client sends
const registerID = "register_0"

// Message types on the control socket
const (
	typeRegister   = "register"
	typeRequest    = "request"
	typeResponse   = "response"
	typeRegistered = "registered"
)

type registerPayload struct {
	ForcePairing bool     `json:"forcePairing"`
	PairingType  string   `json:"pairingType"`
	ClientKey    string   `json:"client-key,omitempty"`
	Manifest     Manifest `json:"manifest"`
}

type registerRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload registerPayload `json:"payload"`
}

func newRegisterRequest(manifest Manifest, clientKey string) registerRequest {
	return registerRequest{
		Type: typeRegister,
		ID:   registerID,
		Payload: registerPayload{
			ForcePairing: false,
			PairingType:  "PROMPT",
			ClientKey:    clientKey,
			Manifest:     manifest,
		},
	}
}

type ackPayload struct {
	ReturnValue bool `json:"returnValue"`
}

// responseAck confirms a PROMPT pairing response
type responseAck struct {
	Type    string     `json:"type"`
	ID      string     `json:"id"`
	Payload ackPayload `json:"payload"`
}

func newResponseAck(id string) responseAck {
	return responseAck{
		Type:    typeResponse,
		ID:      id,
		Payload: ackPayload{ReturnValue: true},
	}
}

// Request is an outgoing ssap:// command
type Request struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	URI     string         `json:"uri"`
	Payload map[string]any `json:"payload,omitempty"`
}

// message is an inbound frame decoded without a schema. Every accessor is
// nil-safe and returns the zero value when the field is absent or has an
// unexpected type.
type message map[string]any

func parseMessage(data []byte) (message, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return message(m), nil
}

func (m message) optString(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func (m message) optObject(key string) message {
	if v, ok := m[key].(map[string]any); ok {
		return message(v)
	}
	return nil
}

func (m message) optBool(key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

// errorCode returns the registration error code and message, if any.
// Firmware reports it either as an object or as "401 insufficient permissions".
func (m message) errorCode() (code, text string, ok bool) {
	if obj := m.optObject("error"); obj != nil {
		return obj.optString("code"), obj.optString("message"), true
	}
	if s := m.optString("error"); s != "" {
		code, text, _ = strings.Cut(s, " ")
		return code, text, true
	}
	return "", "", false
}
