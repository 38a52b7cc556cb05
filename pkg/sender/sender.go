// Package sender delivers reply text to a chat target through a messaging backend.
package sender

import (
	"context"
	"fmt"

	"zapreply/pkg/config"
	"zapreply/pkg/sender/telegram"
	sendertypes "zapreply/pkg/sender/types"
	"zapreply/pkg/sender/zapi"
)

// Sender performs a single delivery attempt. Implementations must not retry.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg sendertypes.Message) (sendertypes.Result, error)
}

// New builds the configured send backend.
func New(cfg *config.Config) (Sender, error) {
	switch backend := cfg.SenderBackend(); backend {
	case config.SenderZAPI:
		return zapi.New(cfg)
	case config.SenderTelegram:
		return telegram.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported sender backend: %s", backend)
	}
}
