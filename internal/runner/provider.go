package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/llm"
	"github.com/giantswarm/wrapper-eval/internal/runs"
)

// Provider names accepted by GetProvider.
const (
	ProviderStub   = "stub"
	ProviderOpenAI = "openai"
)

// Provider produces a completion for one wrapper/prompt pair.
type Provider interface {
	// Settings describes the provider for the run's config.json.
	Settings() runs.ProviderSettings

	// Complete returns the completion for the full message list sent.
	Complete(ctx context.Context, wrapper battery.Wrapper, prompt battery.Prompt, messages []battery.Message) (*llm.ChatResponse, error)
}

// ProviderConfig configures a completion provider.
type ProviderConfig struct {
	Name        string
	Endpoint    string
	APIKeyEnv   string
	AllowNoKey  bool
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Delay       time.Duration
}

// Provider defaults.
const (
	DefaultEndpoint    = "https://api.openai.com/v1/chat/completions"
	DefaultAPIKeyEnv   = "OPENAI_API_KEY"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 512
	DefaultTimeout     = 60 * time.Second
)

// GetProvider returns the Provider for cfg.Name.
func GetProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case ProviderStub, "dummy", "":
		return &StubProvider{}, nil
	case ProviderOpenAI, "openai_compatible":
		return newOpenAIProvider(cfg)
	default:
		return nil, &UnsupportedProviderError{Name: cfg.Name}
	}
}

// UnsupportedProviderError is returned when an unknown provider is requested.
type UnsupportedProviderError struct {
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported completion provider: " + e.Name
}

// MissingCredentialError is returned when an API key is required but the
// named environment variable is unset.
type MissingCredentialError struct {
	EnvVar string
}

func (e *MissingCredentialError) Error() string {
	return "missing API key env var: " + e.EnvVar
}

// ResolveAPIKey reads the API key from envVar. A missing key is an error
// unless allowNoKey is set or the endpoint is local.
func ResolveAPIKey(envVar, endpoint string, allowNoKey bool) (string, error) {
	if envVar == "" {
		envVar = DefaultAPIKeyEnv
	}
	key := os.Getenv(envVar)
	if key == "" && !allowNoKey && !llm.IsLocalEndpoint(endpoint) {
		return "", &MissingCredentialError{EnvVar: envVar}
	}
	return key, nil
}

func newOpenAIProvider(cfg ProviderConfig) (*ChatProvider, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	key, err := ResolveAPIKey(cfg.APIKeyEnv, cfg.Endpoint, cfg.AllowNoKey)
	if err != nil {
		return nil, err
	}

	opts := []llm.Option{
		llm.WithBaseURL(cfg.Endpoint),
		llm.WithModel(cfg.Model),
		llm.WithTemperature(cfg.Temperature),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTimeout(cfg.Timeout),
	}
	if key != "" {
		opts = append(opts, llm.WithAPIKey(key))
	}

	slog.Debug("configured chat completion provider",
		"endpoint", cfg.Endpoint,
		"model", cfg.Model,
		"delay", cfg.Delay,
	)

	p := NewChatProvider(llm.WithPacing(llm.NewOpenAIClient(opts...), cfg.Delay), cfg.Model, cfg.Temperature, cfg.MaxTokens)
	p.endpoint = cfg.Endpoint
	p.allowNoKey = cfg.AllowNoKey
	return p, nil
}

// ChatProvider sends the wrapped prompt to an OpenAI-compatible endpoint.
type ChatProvider struct {
	client      llm.Client
	model       string
	temperature float64
	maxTokens   int
	endpoint    string
	allowNoKey  bool
}

// NewChatProvider creates a provider backed by client.
func NewChatProvider(client llm.Client, model string, temperature float64, maxTokens int) *ChatProvider {
	return &ChatProvider{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (p *ChatProvider) Settings() runs.ProviderSettings {
	return runs.ProviderSettings{
		Provider:    ProviderOpenAI,
		Model:       p.model,
		Endpoint:    p.endpoint,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		AllowNoKey:  p.allowNoKey,
	}
}

func (p *ChatProvider) Complete(ctx context.Context, _ battery.Wrapper, prompt battery.Prompt, messages []battery.Message) (*llm.ChatResponse, error) {
	req := llm.ChatRequest{
		Model:       p.model,
		Messages:    make([]llm.Message, 0, len(messages)),
		Temperature: llm.Float64Ptr(p.temperature),
		MaxTokens:   p.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.ChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get completion for prompt %s: %w", prompt.ID, err)
	}
	return resp, nil
}
