// Package guard decides whether an inbound event may produce a reply.
//
// Classification is a single ordered rule list. Self-sent and status checks run before any
// content check, and the echo-marker rule catches redelivered bot messages even when the
// provider forgets to flag them.
package guard

import (
	"strings"

	"zapreply/pkg/inbound"
)

// DefaultEchoMarker is the prefix the service puts on its own scripted replies.
const DefaultEchoMarker = "recebi:"

// Disposition is the classifier verdict for one event.
type Disposition string

const (
	Proceed              Disposition = "proceed"
	IgnoredSelfSent      Disposition = "ignored_self_sent"
	IgnoredStatusEvent   Disposition = "ignored_status_event"
	IgnoredGroup         Disposition = "ignored_group"
	IgnoredMissingTarget Disposition = "ignored_missing_target"
	IgnoredEmptyText     Disposition = "ignored_empty_text"
	IgnoredEcho          Disposition = "ignored_echo"
)

var reasons = map[Disposition]string{
	Proceed:              "",
	IgnoredSelfSent:      "message sent by this account",
	IgnoredStatusEvent:   "status callback",
	IgnoredGroup:         "group message",
	IgnoredMissingTarget: "phone is empty",
	IgnoredEmptyText:     "text is empty",
	IgnoredEcho:          "echo of an outbound reply",
}

// Ignored reports whether the event must not produce a reply.
func (d Disposition) Ignored() bool {
	return d != Proceed
}

// Reason returns the short acknowledgment reason. Proceed has none.
func (d Disposition) Reason() string {
	return reasons[d]
}

// Policy holds the configurable parts of classification.
type Policy struct {
	// EchoMarker is matched case-insensitively against the start of the text.
	// Blank falls back to DefaultEchoMarker.
	EchoMarker  string
	AllowGroups bool
}

// DefaultPolicy filters groups and uses the default echo marker.
func DefaultPolicy() Policy {
	return Policy{EchoMarker: DefaultEchoMarker}
}

type rule struct {
	disposition Disposition
	match       func(inbound.Event, Policy) bool
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{IgnoredSelfSent, func(e inbound.Event, _ Policy) bool { return e.Flags.FromMe }},
	{IgnoredStatusEvent, func(e inbound.Event, _ Policy) bool { return e.Flags.IsStatusEvent }},
	{IgnoredGroup, func(e inbound.Event, p Policy) bool { return e.Flags.IsGroup && !p.AllowGroups }},
	{IgnoredMissingTarget, func(e inbound.Event, _ Policy) bool { return e.ChatTarget == "" }},
	{IgnoredEmptyText, func(e inbound.Event, _ Policy) bool { return e.Text == "" }},
	{IgnoredEcho, func(e inbound.Event, p Policy) bool { return HasEchoMarker(e.Text, p.EchoMarker) }},
}

// Classify returns the disposition of event under policy. It is pure and total.
func Classify(event inbound.Event, policy Policy) Disposition {
	for _, r := range rules {
		if r.match(event, policy) {
			return r.disposition
		}
	}

	return Proceed
}

// HasEchoMarker reports whether text starts with marker, ignoring case and leading space.
func HasEchoMarker(text string, marker string) bool {
	marker = strings.ToLower(strings.TrimSpace(marker))
	if marker == "" {
		marker = DefaultEchoMarker
	}

	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), marker)
}
