// Package inbound turns loosely structured chat-platform webhook bodies into a canonical Event.
//
// The upstream payload shape varies by event type and provider version, so the body is
// treated as an opaque JSON tree and queried with an ordered list of typed accessors. Every
// accessor has a safe default, which keeps Normalize total: it never fails and never leaves a
// field unset.
package inbound

// Flags are derived boolean signals consumed by the reply-loop guard.
type Flags struct {
	FromMe        bool `json:"from_me"`
	IsStatusEvent bool `json:"is_status_event"`
	IsGroup       bool `json:"is_group"`
}

// Event is the canonical form of one inbound webhook delivery.
//
// ChatTarget and Text are never absent: a missing value is the empty string.
type Event struct {
	ChatTarget string   `json:"chat_target"`
	Text       string   `json:"text"`
	Flags      Flags    `json:"flags"`
	EventType  string   `json:"event_type,omitempty"`
	RawKeys    []string `json:"raw_keys"`
}

// Options tunes target normalization for the active send backend.
type Options struct {
	// DigitsOnly reduces the chat target to its digits, as phone-number senders expect.
	DigitsOnly bool
}
