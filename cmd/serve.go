package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zapreply/pkg/config"
	"zapreply/pkg/gateway"
	"zapreply/pkg/logger"
	"zapreply/pkg/provider"
	"zapreply/pkg/provider/profile"
	"zapreply/pkg/reply"
	"zapreply/pkg/sender"
	"zapreply/pkg/webhook"

	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook gateway",
	Long:  "Serves the webhook endpoint with health, readiness, and metrics routes until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if servePort > 0 {
			cfg.Gateway.Port = servePort
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		handler, client, err := buildPipeline(cfg, log)
		if err != nil {
			return err
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, handler, client, log)
		if err != nil {
			return fmt.Errorf("failed to initialize gateway service: %w", err)
		}

		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("gateway runtime failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides gateway.port)")
}

// buildPipeline assembles the webhook handler. With incomplete configuration the handler is
// still returned so GET and the health routes keep working; every POST then answers 500.
func buildPipeline(cfg *config.Config, log *slog.Logger) (*webhook.Handler, provider.Client, error) {
	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		log.Error("Required configuration missing, webhook events will be rejected", "missing", missing)
		return webhook.New(webhook.Options{Config: cfg, Log: log}), nil, nil
	}

	client, err := provider.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize provider: %w", err)
	}

	backend, err := sender.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize sender: %w", err)
	}

	instruction, err := profile.ResolveSystemInstruction(cfg.Generation.SystemInstruction)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve system instruction: %w", err)
	}

	resolverOpts := reply.Options{
		SystemInstruction: instruction,
		Model:             cfg.Generation.Model,
		Greeting:          cfg.Reply.Greeting,
		Fallback:          cfg.Reply.Fallback,
		EchoLabel:         cfg.Reply.EchoMarker,
		Timeout:           time.Duration(cfg.GenerationTimeoutSeconds()) * time.Second,
		Log:               log,
	}
	if client != nil {
		resolverOpts.Generator = client
	}

	log.Info("Webhook pipeline ready",
		"sender", backend.Name(),
		"generation_enabled", client != nil,
		"provider", cfg.GenerationProvider(),
		"model", cfg.Generation.Model,
	)

	return webhook.New(webhook.Options{
		Config:   cfg,
		Resolver: reply.NewResolver(resolverOpts),
		Sender:   backend,
		Log:      log,
	}), client, nil
}
