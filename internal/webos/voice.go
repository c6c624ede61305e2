package webos

import (
	"strings"
	"unicode"
)

type voiceRule struct {
	phrases []string
	command string
}

// voiceRules are checked in order against the words of the lower-cased
// phrase; the first rule with a matching word sequence wins. Multi-word rules
// come before the single words they contain ("canal arriba" before "arriba").
// Matching whole words keeps "playback" and "look" from hitting "back" or "ok".
var voiceRules = []voiceRule{
	// Volume
	{[]string{"subir volumen", "más volumen", "volume up", "louder"}, "VOLUMEUP"},
	{[]string{"bajar volumen", "menos volumen", "volume down", "quieter"}, "VOLUMEDOWN"},
	{[]string{"silenciar", "mute"}, "MUTE"},

	// Channels
	{[]string{"canal arriba", "siguiente canal", "channel up", "next channel"}, "CHANNELUP"},
	{[]string{"canal abajo", "canal anterior", "channel down", "previous channel"}, "CHANNELDOWN"},

	// Navigation
	{[]string{"arriba", "up"}, "UP"},
	{[]string{"abajo", "down"}, "DOWN"},
	{[]string{"izquierda", "left"}, "LEFT"},
	{[]string{"derecha", "right"}, "RIGHT"},
	{[]string{"ok", "enter", "seleccionar", "select"}, "ENTER"},
	{[]string{"atrás", "volver", "back"}, "BACK"},
	{[]string{"home", "inicio"}, "HOME"},
	{[]string{"menú", "menu"}, "MENU"},

	// Playback
	{[]string{"play", "reproducir"}, "PLAY"},
	{[]string{"pausa", "pausar", "pause"}, "PAUSE"},
	{[]string{"stop", "parar"}, "STOP"},
	{[]string{"adelantar", "fast forward"}, "FASTFORWARD"},
	{[]string{"retroceder", "rewind"}, "REWIND"},

	// Power
	{[]string{"encender", "apagar", "power", "turn off"}, "POWER"},

	// Apps
	{[]string{"netflix"}, "NETFLIX"},
	{[]string{"youtube"}, "YOUTUBE"},

	// Digits
	{[]string{"uno", "1"}, "1"},
	{[]string{"dos", "2"}, "2"},
	{[]string{"tres", "3"}, "3"},
	{[]string{"cuatro", "4"}, "4"},
	{[]string{"cinco", "5"}, "5"},
	{[]string{"seis", "6"}, "6"},
	{[]string{"siete", "7"}, "7"},
	{[]string{"ocho", "8"}, "8"},
	{[]string{"nueve", "9"}, "9"},
	{[]string{"cero", "0"}, "0"},
}

// MatchVoiceCommand maps a recognised phrase to a command name
func MatchVoiceCommand(phrase string) (string, bool) {
	words := splitWords(phrase)
	if len(words) == 0 {
		return "", false
	}
	for _, rule := range voiceRules {
		for _, s := range rule.phrases {
			if containsWords(words, splitWords(s)) {
				return rule.command, true
			}
		}
	}
	return "", false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsWords reports whether want appears as a contiguous run in words
func containsWords(words, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(words); i++ {
		match := true
		for j, w := range want {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// VoiceCommand returns the command to send for a phrase: the matched name,
// or the phrase itself so the TV shows it in the unknown-command toast.
func VoiceCommand(phrase string) (command string, matched bool) {
	if cmd, ok := MatchVoiceCommand(phrase); ok {
		return cmd, true
	}
	return phrase, false
}
