// Package types holds the values shared by the sender factory and its backends.
package types

import (
	"fmt"
	"strings"
)

// Message is one outbound text.
type Message struct {
	Target string
	Text   string
}

// Result describes what the backend answered. Delivered is true only for a 2xx answer.
type Result struct {
	Delivered  bool
	StatusCode int
	Body       string
}

// Validate rejects messages the backends could never deliver.
func Validate(msg Message) error {
	if strings.TrimSpace(msg.Target) == "" {
		return NewError(ErrorInvalidTarget, "target is empty")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return NewError(ErrorEncode, "text is empty")
	}

	return nil
}

// StatusError builds the categorized error for a non-2xx backend answer.
func StatusError(statusCode int) error {
	return NewError(ErrorStatus, fmt.Sprintf("unexpected status %d", statusCode))
}
