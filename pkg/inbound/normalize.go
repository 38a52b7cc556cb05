package inbound

import (
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// Candidate paths in priority order. The first present, correctly typed, non-blank value wins;
// later candidates are never merged in.
var (
	textPaths = []string{
		"text.message",
		"message.text",
		"message",
		"body",
		"messages.0.text",
		"data.text",
	}
	targetPaths = []string{
		"phone",
		"connectedPhone",
		"chatId",
		"from",
		"message.phone",
		"data.phone",
	}
	fromMePaths    = []string{"fromMe", "sentByMe", "isSentByMe", "message.fromMe"}
	eventTypePaths = []string{"type", "event"}
)

// statusMarkers are event-type values that describe delivery or presence callbacks, never
// customer messages. Compared case-insensitively.
var statusMarkers = map[string]struct{}{
	"messagestatuscallback": {},
	"deliverycallback":      {},
	"presencechatcallback":  {},
	"statuscallback":        {},
}

// targetSuffixes are chat-id domain markers stripped from targets.
var targetSuffixes = []string{
	"@s.whatsapp.net",
	"@broadcast",
	"@c.us",
	"@g.us",
	"@lid",
	"-group",
}

// Normalize extracts an Event from a raw webhook body. It never fails: a body that is not a
// JSON object yields the zero Event with an empty (non-nil) RawKeys slice.
func Normalize(raw []byte, opts Options) Event {
	event := Event{RawKeys: []string{}}

	if !gjson.ValidBytes(raw) {
		return event
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return event
	}

	event.RawKeys = topLevelKeys(root)
	event.Text = strings.TrimSpace(firstPresentString(root, textPaths))
	event.ChatTarget = NormalizeTarget(firstString(root, targetPaths), opts.DigitsOnly)
	event.EventType = strings.TrimSpace(firstString(root, eventTypePaths))
	event.Flags = Flags{
		FromMe:        anyTrue(root, fromMePaths),
		IsStatusEvent: isTrue(root, "isStatusReply") || isStatusMarker(event.EventType),
		IsGroup:       isTrue(root, "isGroup"),
	}

	return event
}

// NormalizeTarget strips chat-id suffix markers and optionally reduces the target to digits.
func NormalizeTarget(raw string, digitsOnly bool) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		return ""
	}

	lower := strings.ToLower(target)
	for _, suffix := range targetSuffixes {
		if strings.HasSuffix(lower, suffix) {
			target = target[:len(target)-len(suffix)]
			lower = lower[:len(lower)-len(suffix)]
		}
	}

	// user:device identifiers keep only the user part.
	if idx := strings.IndexByte(target, ':'); idx > 0 {
		target = target[:idx]
	}

	target = strings.TrimSpace(target)
	if !digitsOnly {
		return target
	}

	return digits(target)
}

func digits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// firstPresentString returns the first candidate that is a JSON string, blank or not. Later
// candidates are never consulted once one is present.
func firstPresentString(root gjson.Result, paths []string) string {
	for _, path := range paths {
		if value := root.Get(path); value.Type == gjson.String {
			return value.Str
		}
	}

	return ""
}

// firstString returns the first candidate that is a non-blank JSON string.
func firstString(root gjson.Result, paths []string) string {
	for _, path := range paths {
		value := root.Get(path)
		if value.Type != gjson.String {
			continue
		}
		if strings.TrimSpace(value.Str) == "" {
			continue
		}
		return value.Str
	}

	return ""
}

func anyTrue(root gjson.Result, paths []string) bool {
	for _, path := range paths {
		if isTrue(root, path) {
			return true
		}
	}

	return false
}

// isTrue reports whether path holds the JSON literal true. Truthy strings do not count.
func isTrue(root gjson.Result, path string) bool {
	return root.Get(path).Type == gjson.True
}

func isStatusMarker(eventType string) bool {
	_, ok := statusMarkers[strings.ToLower(strings.TrimSpace(eventType))]
	return ok
}

func topLevelKeys(root gjson.Result) []string {
	keys := make([]string, 0)
	root.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	slices.Sort(keys)

	return slices.Compact(keys)
}
