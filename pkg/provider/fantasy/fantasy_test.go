package fantasy

import (
	"context"
	"errors"
	"testing"

	core "charm.land/fantasy"

	"zapreply/pkg/config"
	providertypes "zapreply/pkg/provider/types"
)

type fakeLanguageModelProvider struct {
	model     core.LanguageModel
	err       error
	lastID    string
	callCount int
}

func (f *fakeLanguageModelProvider) LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error) {
	f.callCount++
	f.lastID = modelID
	if f.err != nil {
		return nil, f.err
	}

	return f.model, nil
}

type fakeLanguageModel struct{}

func (f *fakeLanguageModel) Generate(context.Context, core.Call) (*core.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) Stream(context.Context, core.Call) (core.StreamResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) GenerateObject(context.Context, core.ObjectCall) (*core.ObjectResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) StreamObject(context.Context, core.ObjectCall) (core.ObjectStreamResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) Provider() string { return "openai" }
func (f *fakeLanguageModel) Model() string    { return "gpt-5.2" }

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg := &config.Config{}
	cfg.Generation.Model = "openai/gpt-5.2"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestNewAppliesGenerationTuning(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := &config.Config{}
	cfg.Generation.Model = "openai/gpt-5.2"
	cfg.Generation.MaxTokens = 256
	cfg.Generation.Temperature = 0.4

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if client.modelID != "gpt-5.2" {
		t.Fatalf("modelID = %q, want %q", client.modelID, "gpt-5.2")
	}
	if client.maxOutputTokens == nil || *client.maxOutputTokens != 256 {
		t.Fatalf("maxOutputTokens = %v, want 256", client.maxOutputTokens)
	}
	if client.temperature == nil || *client.temperature != 0.4 {
		t.Fatalf("temperature = %v, want 0.4", client.temperature)
	}
}

func TestNormalizeOpenAIModel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain model", input: "gpt-5.2", want: "gpt-5.2"},
		{name: "openai prefixed", input: "openai/gpt-5.2", want: "gpt-5.2"},
		{name: "non openai prefixed", input: "anthropic/claude", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeOpenAIModel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizeOpenAIModel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("normalizeOpenAIModel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHealthResolvesConfiguredModel(t *testing.T) {
	provider := &fakeLanguageModelProvider{model: &fakeLanguageModel{}}
	client := &Client{provider: provider, modelID: "gpt-5.2"}

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health error: %v", err)
	}
	if provider.callCount != 1 || provider.lastID != "gpt-5.2" {
		t.Fatalf("health resolved %d models, last %q", provider.callCount, provider.lastID)
	}

	provider.err = errors.New("down")
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected health error when provider fails")
	}
}

func TestGenerateSendsSystemInstructionAndUserText(t *testing.T) {
	var captured core.AgentCall
	client := &Client{
		provider: &fakeLanguageModelProvider{model: &fakeLanguageModel{}},
		modelID:  "gpt-5.2",
		generate: func(_ context.Context, _ core.LanguageModel, call core.AgentCall) (*core.AgentResult, error) {
			captured = call
			return &core.AgentResult{
				Response: core.Response{Content: core.ResponseContent{core.TextContent{Text: " reply "}}},
			}, nil
		},
	}

	result, err := client.Generate(context.Background(), providertypes.GenerateRequest{
		SystemInstruction: "be brief",
		UserText:          " hello ",
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if result.Text != "reply" {
		t.Fatalf("Text = %q, want %q", result.Text, "reply")
	}
	if captured.Prompt != "hello" {
		t.Fatalf("prompt = %q, want %q", captured.Prompt, "hello")
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != core.MessageRoleSystem {
		t.Fatalf("messages = %#v, want one system message", captured.Messages)
	}
	if result.Metadata.Usage != nil {
		t.Fatalf("usage = %#v, want nil for zero counters", result.Metadata.Usage)
	}
}

func TestGenerateRejectsEmptyInputAndEmptyOutput(t *testing.T) {
	client := &Client{
		provider: &fakeLanguageModelProvider{model: &fakeLanguageModel{}},
		modelID:  "gpt-5.2",
		generate: func(context.Context, core.LanguageModel, core.AgentCall) (*core.AgentResult, error) {
			return &core.AgentResult{}, nil
		},
	}

	if _, err := client.Generate(context.Background(), providertypes.GenerateRequest{UserText: "  "}); err == nil {
		t.Fatal("expected error for empty user text")
	}
	if _, err := client.Generate(context.Background(), providertypes.GenerateRequest{UserText: "hi"}); err == nil {
		t.Fatal("expected error for empty generated text")
	}
}

func TestExtractText(t *testing.T) {
	content := core.ResponseContent{
		core.ReasoningContent{Text: "ignore me"},
		core.TextContent{Text: "  first  "},
		core.TextContent{Text: ""},
		core.TextContent{Text: "second"},
	}

	if got := extractText(content); got != "first\nsecond" {
		t.Fatalf("extractText = %q, want %q", got, "first\nsecond")
	}
}
