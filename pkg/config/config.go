package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	envConfigPath         = "ZAPREPLY_CONFIG"
	envZAPIInstanceID     = "ZAPI_INSTANCE_ID"
	envZAPIInstanceToken  = "ZAPI_INSTANCE_TOKEN"
	envZAPIClientToken    = "ZAPI_CLIENT_TOKEN"
	envZAPIBaseURL        = "ZAPI_BASE_URL"
	envTelegramBotToken   = "TELEGRAM_BOT_TOKEN"
	envGatewayPort        = "ZAPREPLY_PORT"
	envGenerationEnabled  = "ZAPREPLY_GENERATION_ENABLED"
	envAllowGroups        = "ZAPREPLY_ALLOW_GROUPS"
	defaultOpenAIKeyEnv   = "OPENAI_API_KEY"
	defaultZAPIBaseURL    = "https://api.z-api.io"
	defaultWebhookPath    = "/webhook"
	defaultTimeoutSeconds = 10
)

// Sender backend identifiers.
const (
	SenderZAPI     = "zapi"
	SenderTelegram = "telegram"
)

// Config is the root runtime configuration. It is loaded once and never mutated afterwards.
type Config struct {
	Gateway    GatewayConfig    `json:"gateway"`
	Webhook    WebhookConfig    `json:"webhook"`
	Reply      ReplyConfig      `json:"reply"`
	Generation GenerationConfig `json:"generation"`
	Providers  ProvidersConfig  `json:"providers"`
	Sender     SenderConfig     `json:"sender"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// GatewayConfig configures HTTP bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// WebhookConfig configures the inbound webhook route and payload handling.
type WebhookConfig struct {
	Path string `json:"path"`
	// DigitsOnly reduces chat targets to digits before they reach the sender.
	DigitsOnly bool `json:"digits_only"`
}

// ReplyConfig controls the reply-loop guard and the scripted reply texts.
type ReplyConfig struct {
	// EchoMarker is both the prefix put on every reply and the prefix the guard ignores.
	EchoMarker  string `json:"echo_marker"`
	AllowGroups bool   `json:"allow_groups"`
	Greeting    string `json:"greeting"`
	Fallback    string `json:"fallback"`
}

// GenerationConfig selects and tunes the text generation provider.
type GenerationConfig struct {
	Enabled           bool    `json:"enabled"`
	Provider          string  `json:"provider"`
	Model             string  `json:"model"`
	SystemInstruction string  `json:"system_instruction"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenCode OpenCodeProviderConfig `json:"opencode"`
	OpenAI   OpenAIProviderConfig   `json:"openai"`
}

// OpenCodeProviderConfig configures the OpenCode provider client.
type OpenCodeProviderConfig struct {
	BaseURL     string `json:"base_url"`
	Username    string `json:"username"`
	PasswordEnv string `json:"password_env"`
	Agent       string `json:"agent"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	BaseURL      string `json:"base_url"`
	Organization string `json:"organization"`
	Project      string `json:"project"`
	APIKeyEnv    string `json:"api_key_env"`
}

// SenderConfig selects the chat-platform send backend.
type SenderConfig struct {
	Backend               string         `json:"backend"`
	RequestTimeoutSeconds int            `json:"request_timeout_seconds"`
	ZAPI                  ZAPIConfig     `json:"zapi"`
	Telegram              TelegramConfig `json:"telegram"`
}

// ZAPIConfig holds the Z-API instance credentials.
type ZAPIConfig struct {
	BaseURL       string `json:"base_url"`
	InstanceID    string `json:"instance_id"`
	InstanceToken string `json:"instance_token"`
	ClientToken   string `json:"client_token"`
}

// TelegramConfig configures the Telegram send backend.
type TelegramConfig struct {
	Token string `json:"token"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Webhook: WebhookConfig{Path: defaultWebhookPath},
		Sender: SenderConfig{
			Backend: SenderZAPI,
			ZAPI:    ZAPIConfig{BaseURL: defaultZAPIBaseURL},
		},
		Generation: GenerationConfig{Provider: "openai"},
	}
}

// LoadConfig resolves config.json, unmarshals it over defaults, and applies environment overrides.
//
// A missing config file is not an error: webhook deployments are commonly configured by
// environment alone.
func LoadConfig() (*Config, error) {
	cfg := Default()

	configPath, err := findConfigPath()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	overrideString(&cfg.Sender.ZAPI.InstanceID, envZAPIInstanceID)
	overrideString(&cfg.Sender.ZAPI.InstanceToken, envZAPIInstanceToken)
	overrideString(&cfg.Sender.ZAPI.ClientToken, envZAPIClientToken)
	overrideString(&cfg.Sender.ZAPI.BaseURL, envZAPIBaseURL)
	overrideString(&cfg.Sender.Telegram.Token, envTelegramBotToken)

	if raw := strings.TrimSpace(os.Getenv(envGatewayPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", envGatewayPort, raw)
		}
		cfg.Gateway.Port = port
	}

	if raw := strings.TrimSpace(os.Getenv(envGenerationEnabled)); raw != "" {
		cfg.Generation.Enabled = parseBool(raw)
	}
	if raw := strings.TrimSpace(os.Getenv(envAllowGroups)); raw != "" {
		cfg.Reply.AllowGroups = parseBool(raw)
	}

	return nil
}

func overrideString(target *string, envName string) {
	if value := strings.TrimSpace(os.Getenv(envName)); value != "" {
		*target = value
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is ZAPREPLY_CONFIG first, then cwd-local fallback paths. When nothing is found
// the returned error wraps fs.ErrNotExist.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s): %w", candidates[0], candidates[1], fs.ErrNotExist)
}

// MissingCredentials lists the configuration keys that must be set before webhook
// events can be processed. An empty result means the configuration is complete.
func (c *Config) MissingCredentials() []string {
	if c == nil {
		return []string{"config"}
	}

	var missing []string
	switch c.SenderBackend() {
	case SenderTelegram:
		if strings.TrimSpace(c.Sender.Telegram.Token) == "" {
			missing = append(missing, "sender.telegram.token")
		}
	case SenderZAPI:
		if strings.TrimSpace(c.Sender.ZAPI.InstanceID) == "" {
			missing = append(missing, "sender.zapi.instance_id")
		}
		if strings.TrimSpace(c.Sender.ZAPI.InstanceToken) == "" {
			missing = append(missing, "sender.zapi.instance_token")
		}
		if strings.TrimSpace(c.Sender.ZAPI.ClientToken) == "" {
			missing = append(missing, "sender.zapi.client_token")
		}
	default:
		missing = append(missing, "sender.backend")
	}

	if c.Generation.Enabled && c.generationNeedsAPIKey() && c.OpenAIAPIKey() == "" {
		missing = append(missing, "providers.openai.api_key_env")
	}

	return missing
}

// SenderBackend returns the normalized send backend name, defaulting to Z-API.
func (c *Config) SenderBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Sender.Backend))
	if backend == "" {
		return SenderZAPI
	}

	return backend
}

// GenerationProvider returns the normalized generation provider name.
func (c *Config) GenerationProvider() string {
	providerID := strings.ToLower(strings.TrimSpace(c.Generation.Provider))
	if providerID == "" {
		return "openai"
	}

	return providerID
}

// OpenAIAPIKey resolves the OpenAI key from the configured env var, then OPENAI_API_KEY.
func (c *Config) OpenAIAPIKey() string {
	if apiKeyEnv := strings.TrimSpace(c.Providers.OpenAI.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv(defaultOpenAIKeyEnv))
}

func (c *Config) generationNeedsAPIKey() bool {
	return c.GenerationProvider() != "opencode"
}

// WebhookPath returns the configured inbound route.
func (c *Config) WebhookPath() string {
	path := strings.TrimSpace(c.Webhook.Path)
	if path == "" {
		return defaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return path
}

// GenerationTimeoutSeconds returns the bounded generation timeout.
func (c *Config) GenerationTimeoutSeconds() int {
	return positiveOr(c.Generation.TimeoutSeconds, defaultTimeoutSeconds)
}

// SenderTimeoutSeconds returns the bounded send timeout.
func (c *Config) SenderTimeoutSeconds() int {
	return positiveOr(c.Sender.RequestTimeoutSeconds, defaultTimeoutSeconds)
}

func positiveOr(value int, fallback int) int {
	if value > 0 {
		return value
	}

	return fallback
}
