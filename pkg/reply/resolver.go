// Package reply decides the outbound text for an event the guard let through.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zapreply/pkg/inbound"
	"zapreply/pkg/logger"
	providertypes "zapreply/pkg/provider/types"
)

const (
	DefaultGreeting = "Olá! 👋 Como posso ajudar?"
	DefaultFallback = "Desculpe, não consegui entender. Pode me dar mais detalhes sobre o que precisa?"

	// DefaultEchoLabel starts every outbound reply; it matches the default echo marker.
	DefaultEchoLabel = "Recebi:"

	defaultGenerationTimeout = 10 * time.Second
)

// Source records where the reply text came from.
type Source string

const (
	SourceGreeting  Source = "greeting"
	SourceGenerated Source = "generated"
	SourceEcho      Source = "echo"
	SourceFallback  Source = "fallback"
)

var greetingTokens = map[string]struct{}{
	"hi":        {},
	"hello":     {},
	"hey":       {},
	"oi":        {},
	"olá":       {},
	"ola":       {},
	"hola":      {},
	"bom dia":   {},
	"boa tarde": {},
	"boa noite": {},
}

// Generator is the subset of the provider client the resolver needs.
type Generator interface {
	Generate(ctx context.Context, req providertypes.GenerateRequest) (providertypes.GenerateResult, error)
}

// OutboundReply is the text to deliver to one chat target.
type OutboundReply struct {
	ChatTarget string
	Text       string
	Source     Source
}

// Options configures a Resolver. Zero values fall back to the defaults above.
type Options struct {
	// Generator may be nil, which selects the scripted echo reply.
	Generator         Generator
	SystemInstruction string
	Model             string
	Greeting          string
	Fallback          string
	// EchoLabel prefixes every reply so a redelivered bot message trips the echo guard. It
	// must match the guard's echo marker.
	EchoLabel string
	Timeout   time.Duration
	Log       *slog.Logger
}

// Resolver turns a proceed-classified event into an OutboundReply. It never fails.
type Resolver struct {
	generator         Generator
	systemInstruction string
	model             string
	greeting          string
	fallback          string
	echoLabel         string
	timeout           time.Duration
	log               *slog.Logger
}

func NewResolver(opts Options) *Resolver {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}

	return &Resolver{
		generator:         opts.Generator,
		systemInstruction: strings.TrimSpace(opts.SystemInstruction),
		model:             strings.TrimSpace(opts.Model),
		greeting:          orDefault(opts.Greeting, DefaultGreeting),
		fallback:          orDefault(opts.Fallback, DefaultFallback),
		echoLabel:         orDefault(opts.EchoLabel, DefaultEchoLabel),
		timeout:           timeout,
		log:               log.With("component", "reply.resolver"),
	}
}

// Resolve picks the greeting, the generated reply, the echo reply, or the fallback. Every
// reply text starts with the echo label.
func (r *Resolver) Resolve(ctx context.Context, event inbound.Event) OutboundReply {
	out := OutboundReply{ChatTarget: event.ChatTarget}

	var text string
	switch {
	case IsGreeting(event.Text):
		text, out.Source = r.greeting, SourceGreeting
	case r.generator == nil:
		// Generation disabled: quote the inbound text back.
		text, out.Source = quoted(event.Text), SourceEcho
	default:
		text, out.Source = r.generate(ctx, event.Text)
	}
	out.Text = r.echoLabel + " " + text

	return out
}

func (r *Resolver) generate(ctx context.Context, text string) (string, Source) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	startedAt := time.Now()
	result, err := r.callGenerator(ctx, text)
	if err != nil {
		r.log.Warn("Generation failed, using fallback reply",
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"error", err,
		)
		return r.fallback, SourceFallback
	}

	reply := strings.TrimSpace(result.Text)
	if reply == "" {
		r.log.Warn("Generation returned empty text, using fallback reply",
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
		return r.fallback, SourceFallback
	}

	r.log.Debug("Generated reply",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"provider", result.Metadata.Provider,
		"model", result.Metadata.Model,
		"content", logger.Preview(reply),
	)
	return reply, SourceGenerated
}

// callGenerator shields the resolver from provider panics; a broken provider degrades to the
// fallback reply like any other generation failure.
func (r *Resolver) callGenerator(ctx context.Context, text string) (result providertypes.GenerateResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("generator panic: %v", recovered)
		}
	}()

	return r.generator.Generate(ctx, providertypes.GenerateRequest{
		SystemInstruction: r.systemInstruction,
		UserText:          text,
		Model:             r.model,
	})
}

// IsGreeting reports whether text is one of the fixed greeting tokens.
func IsGreeting(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, "!.?, ")
	_, ok := greetingTokens[normalized]
	return ok
}

func quoted(text string) string {
	return fmt.Sprintf("\"%s\"", strings.TrimSpace(text))
}

func orDefault(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}

	return fallback
}
