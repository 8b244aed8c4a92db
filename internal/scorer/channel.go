package scorer

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/wrapper-eval/internal/llm"
	"github.com/giantswarm/wrapper-eval/internal/runner"
	"github.com/giantswarm/wrapper-eval/internal/signals"
)

// Channel kinds accepted in ChannelConfig.Kinds.
const (
	KindHeuristic = "heuristic"
	KindOpenAI    = "openai"
)

// Judge defaults.
const (
	DefaultJudgeModel     = "gpt-4.1"
	DefaultJudgeMaxTokens = 256
)

// Input is what a judge channel sees for one generation.
type Input struct {
	// Prompt is the joined user text of the original prompt.
	Prompt     string
	Completion string
}

// Channel is one scoring method contributing to the aggregate indicator.
type Channel interface {
	// ID identifies the channel in per-judge score maps.
	ID() string

	// Judge scores a completion. Unparsable replies yield an empty Verdict;
	// an error means the endpoint could not be used at all.
	Judge(ctx context.Context, in Input) (Verdict, error)
}

// HeuristicChannel scores with signals.HeuristicIndicatorScore.
type HeuristicChannel struct{}

func (HeuristicChannel) ID() string { return KindHeuristic }

func (HeuristicChannel) Judge(_ context.Context, in Input) (Verdict, error) {
	score := float64(signals.HeuristicIndicatorScore(in.Completion))
	return Verdict{Score: &score}, nil
}

// ModelChannel asks an OpenAI-compatible model to grade the completion.
type ModelChannel struct {
	client      llm.Client
	model       string
	rubric      string
	temperature float64
	maxTokens   int
}

// NewModelChannel creates a judge channel backed by client.
func NewModelChannel(client llm.Client, model string, temperature float64, maxTokens int) *ModelChannel {
	return &ModelChannel{
		client:      client,
		model:       model,
		rubric:      Rubric,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// WithRubric replaces the grading rubric.
func (c *ModelChannel) WithRubric(rubric string) *ModelChannel {
	c.rubric = rubric
	return c
}

func (c *ModelChannel) ID() string { return KindOpenAI + ":" + c.model }

func (c *ModelChannel) Judge(ctx context.Context, in Input) (Verdict, error) {
	resp, err := c.client.ChatCompletion(ctx, llm.ChatRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: "system", Content: JudgeSystemPrompt},
			{Role: "user", Content: JudgeUserPrompt(c.rubric, in.Prompt, in.Completion)},
		},
		Temperature: llm.Float64Ptr(c.temperature),
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("judge %s failed: %w", c.ID(), err)
	}
	return ParseVerdict(resp.Content), nil
}

// ChannelConfig holds the judge channels and their per-channel parameters.
// Each parameter list may be empty (default), hold one value (broadcast),
// or hold exactly one value per channel.
type ChannelConfig struct {
	Kinds        []string
	Endpoints    []string
	APIKeyEnvs   []string
	Models       []string
	Temperatures []float64
	MaxTokens    []int
	Timeouts     []time.Duration
	Delays       []time.Duration
	AllowNoKey   bool

	// Rubric replaces the default grading rubric of model judges.
	Rubric string
}

// ChannelConfigError reports an unusable judge configuration.
type ChannelConfigError struct {
	Reason string
}

func (e *ChannelConfigError) Error() string {
	return "invalid judge configuration: " + e.Reason
}

// ResolvePerChannel expands a per-channel parameter list to n values.
func ResolvePerChannel[T any](name string, values []T, n int, def T) ([]T, error) {
	out := make([]T, n)
	switch {
	case len(values) == 0:
		for i := range out {
			out[i] = def
		}
	case len(values) == 1:
		for i := range out {
			out[i] = values[0]
		}
	case len(values) == n:
		copy(out, values)
	default:
		return nil, &ChannelConfigError{
			Reason: fmt.Sprintf("expected %d values for %s but got %d", n, name, len(values)),
		}
	}
	return out, nil
}

// BuildChannels creates the configured judge channels in order. With no
// kinds configured the heuristic channel is used alone.
func BuildChannels(cfg ChannelConfig) ([]Channel, error) {
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = []string{KindHeuristic}
	}
	n := len(kinds)

	endpoints, err := ResolvePerChannel("judge endpoint", cfg.Endpoints, n, runner.DefaultEndpoint)
	if err != nil {
		return nil, err
	}
	keyEnvs, err := ResolvePerChannel("judge API key env", cfg.APIKeyEnvs, n, runner.DefaultAPIKeyEnv)
	if err != nil {
		return nil, err
	}
	models, err := ResolvePerChannel("judge model", cfg.Models, n, DefaultJudgeModel)
	if err != nil {
		return nil, err
	}
	temperatures, err := ResolvePerChannel("judge temperature", cfg.Temperatures, n, 0)
	if err != nil {
		return nil, err
	}
	maxTokens, err := ResolvePerChannel("judge max tokens", cfg.MaxTokens, n, DefaultJudgeMaxTokens)
	if err != nil {
		return nil, err
	}
	timeouts, err := ResolvePerChannel("judge timeout", cfg.Timeouts, n, runner.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	delays, err := ResolvePerChannel("judge delay", cfg.Delays, n, 0)
	if err != nil {
		return nil, err
	}

	channels := make([]Channel, 0, n)
	for i, kind := range kinds {
		switch kind {
		case KindHeuristic, "toy":
			channels = append(channels, HeuristicChannel{})
		case KindOpenAI, "openai_compatible":
			key, err := runner.ResolveAPIKey(keyEnvs[i], endpoints[i], cfg.AllowNoKey)
			if err != nil {
				return nil, err
			}
			opts := []llm.Option{
				llm.WithBaseURL(endpoints[i]),
				llm.WithTimeout(timeouts[i]),
			}
			if key != "" {
				opts = append(opts, llm.WithAPIKey(key))
			}
			client := llm.WithPacing(llm.NewOpenAIClient(opts...), delays[i])
			ch := NewModelChannel(client, models[i], temperatures[i], maxTokens[i])
			if cfg.Rubric != "" {
				ch.WithRubric(cfg.Rubric)
			}
			channels = append(channels, ch)
		default:
			return nil, &ChannelConfigError{Reason: fmt.Sprintf("unknown judge %q", kind)}
		}
	}
	return channels, nil
}
