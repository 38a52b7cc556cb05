package provider

import (
	"context"
	"fmt"
	"log/slog"

	"zapreply/pkg/config"
	providerfantasy "zapreply/pkg/provider/fantasy"
	provideropenai "zapreply/pkg/provider/openai"
	"zapreply/pkg/provider/opencode"
	providertypes "zapreply/pkg/provider/types"
)

// Client is the generation collaborator: one stateless completion per call.
type Client interface {
	Health(ctx context.Context) error
	Generate(ctx context.Context, req providertypes.GenerateRequest) (providertypes.GenerateResult, error)
}

// New builds the configured generation provider. It returns nil without error when
// generation is disabled.
func New(cfg *config.Config) (Client, error) {
	if !cfg.Generation.Enabled {
		return nil, nil
	}

	providerID := cfg.GenerationProvider()
	slog.Default().With("component", "provider.factory").Debug("Resolving provider client", "provider", providerID)

	switch providerID {
	case "openai":
		return provideropenai.New(cfg)
	case "fantasy":
		return providerfantasy.New(cfg)
	case "opencode":
		return opencode.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
