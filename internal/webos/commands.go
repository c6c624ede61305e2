package webos

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ssap:// endpoints used by the command table
const (
	uriVolumeUp     = "ssap://audio/volumeUp"
	uriVolumeDown   = "ssap://audio/volumeDown"
	uriSetMute      = "ssap://audio/setMute"
	uriChannelUp    = "ssap://tv/channelUp"
	uriChannelDown  = "ssap://tv/channelDown"
	uriPointerInput = "ssap://com.webos.service.networkinput/getPointerInputSocket"
	uriEnterKey     = "ssap://com.webos.service.ime/sendEnterKey"
	uriLaunch       = "ssap://system.launcher/launch"
	uriPlay         = "ssap://media.controls/play"
	uriPause        = "ssap://media.controls/pause"
	uriStop         = "ssap://media.controls/stop"
	uriFastForward  = "ssap://media.controls/fastForward"
	uriRewind       = "ssap://media.controls/rewind"
	uriTurnOff      = "ssap://system/turnOff"
	uriToast        = "ssap://system.notifications/createToast"
)

type endpoint struct {
	uri     string
	payload func(name string) map[string]any
}

func button(name string) map[string]any { return map[string]any{"button": name} }

func launch(appID string) func(string) map[string]any {
	return func(string) map[string]any { return map[string]any{"id": appID} }
}

var commandTable = map[string]endpoint{
	"VOLUMEUP":    {uri: uriVolumeUp},
	"VOLUMEDOWN":  {uri: uriVolumeDown},
	"MUTE":        {uri: uriSetMute, payload: func(string) map[string]any { return map[string]any{"mute": true} }},
	"CHANNELUP":   {uri: uriChannelUp},
	"CHANNELDOWN": {uri: uriChannelDown},
	"UP":          {uri: uriPointerInput, payload: button},
	"DOWN":        {uri: uriPointerInput, payload: button},
	"LEFT":        {uri: uriPointerInput, payload: button},
	"RIGHT":       {uri: uriPointerInput, payload: button},
	"MENU":        {uri: uriPointerInput, payload: button},
	"BACK":        {uri: uriPointerInput, payload: button},
	"ENTER":       {uri: uriEnterKey},
	"HOME":        {uri: uriLaunch, payload: launch("com.webos.app.home")},
	"PLAY":        {uri: uriPlay},
	"PAUSE":       {uri: uriPause},
	"STOP":        {uri: uriStop},
	"FASTFORWARD": {uri: uriFastForward},
	"REWIND":      {uri: uriRewind},
	"POWER":       {uri: uriTurnOff},
	"NETFLIX":     {uri: uriLaunch, payload: launch("netflix")},
	"YOUTUBE":     {uri: uriLaunch, payload: launch("youtube.leanback.v4")},
}

// BuildCommand maps a symbolic command name to a request with a fresh id.
// Names match case-insensitively. Digits and unknown names become toast
// notifications; the unknown-command toast carries the raw text so typos
// and unsupported voice phrases show up on the TV.
func BuildCommand(name string) Request {
	key := strings.ToUpper(strings.TrimSpace(name))
	if ep, ok := commandTable[key]; ok {
		var payload map[string]any
		if ep.payload != nil {
			payload = ep.payload(key)
		}
		return newRequest(ep.uri, payload)
	}
	if isDigit(key) {
		return newRequest(uriToast, map[string]any{"message": "Digit " + key})
	}
	return newRequest(uriToast, map[string]any{"message": "Unknown command: " + name})
}

// IsKnownCommand reports whether name has a dedicated endpoint or is a digit
func IsKnownCommand(name string) bool {
	key := strings.ToUpper(strings.TrimSpace(name))
	_, ok := commandTable[key]
	return ok || isDigit(key)
}

// Commands lists the symbolic names with a dedicated endpoint, sorted
func Commands() []string {
	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newRequest(uri string, payload map[string]any) Request {
	return Request{
		ID:      uuid.NewString(),
		Type:    typeRequest,
		URI:     uri,
		Payload: payload,
	}
}

func isDigit(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}
