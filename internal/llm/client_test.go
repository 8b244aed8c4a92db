package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClientDefaults(t *testing.T) {
	client := NewOpenAIClient()
	assert.Empty(t, client.model)
	assert.Nil(t, client.temperature)
	assert.Zero(t, client.maxTokens)
}

func TestNewOpenAIClientWithAllOptions(t *testing.T) {
	client := NewOpenAIClient(
		WithBaseURL("https://api.example.com/v1"),
		WithAPIKey("sk-test"),
		WithModel("gpt-4"),
		WithTemperature(0.5),
		WithMaxTokens(128),
		WithTimeout(time.Second),
	)
	assert.Equal(t, "gpt-4", client.model)
	require.NotNil(t, client.temperature)
	assert.Equal(t, 0.5, *client.temperature)
	assert.Equal(t, 128, client.maxTokens)
}

func TestApplyDefaultsUsesClientValues(t *testing.T) {
	client := NewOpenAIClient(WithModel("gpt-4"), WithTemperature(0.8), WithMaxTokens(64))

	req := client.applyDefaults(ChatRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	assert.Equal(t, "gpt-4", req.Model)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.8, *req.Temperature)
	assert.Equal(t, 64, req.MaxTokens)
}

func TestApplyDefaultsRequestValuesTakePrecedence(t *testing.T) {
	client := NewOpenAIClient(WithModel("gpt-4"), WithTemperature(0.8), WithMaxTokens(64))

	req := client.applyDefaults(ChatRequest{
		Model:       "gpt-3.5",
		Temperature: Float64Ptr(0),
		MaxTokens:   512,
	})
	assert.Equal(t, "gpt-3.5", req.Model)
	assert.Equal(t, 0.0, *req.Temperature)
	assert.Equal(t, 512, req.MaxTokens)
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1", NormalizeBaseURL("https://api.openai.com/v1/chat/completions"))
	assert.Equal(t, "https://api.openai.com/v1", NormalizeBaseURL("https://api.openai.com/v1/"))
	assert.Equal(t, "http://localhost:11434/v1", NormalizeBaseURL(" http://localhost:11434/v1 "))
}

func TestIsLocalEndpoint(t *testing.T) {
	assert.True(t, IsLocalEndpoint("http://localhost:11434/v1"))
	assert.True(t, IsLocalEndpoint("http://127.0.0.1:8000/v1/chat/completions"))
	assert.True(t, IsLocalEndpoint("http://0.0.0.0:8000"))
	assert.False(t, IsLocalEndpoint("https://api.openai.com/v1"))
}

func TestChatCompletionAgainstServer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 2, "total_tokens": 9}
		}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL+"/v1/chat/completions"), WithAPIKey("sk-test"))
	resp, err := client.ChatCompletion(context.Background(), ChatRequest{
		Model:       "subject-model",
		Messages:    []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
		Temperature: Float64Ptr(0.2),
		MaxTokens:   32,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", resp.Content)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 9, resp.Usage.TotalTokens)

	assert.Equal(t, "subject-model", got["model"])
	assert.EqualValues(t, 32, got["max_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestChatCompletionTemperatureOnTheWire(t *testing.T) {
	tests := []struct {
		name        string
		temperature *float64
		want        any
	}{
		{name: "unset is omitted", temperature: nil, want: nil},
		{name: "zero stays greedy", temperature: Float64Ptr(0), want: float64(math.SmallestNonzeroFloat32)},
		{name: "non-zero is sent", temperature: Float64Ptr(0.5), want: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"c","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
			}))
			defer srv.Close()

			client := NewOpenAIClient(WithBaseURL(srv.URL))
			_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "m", Temperature: tt.temperature})
			require.NoError(t, err)

			v, ok := got["temperature"]
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.InDelta(t, tt.want, v, 1e-9)
		})
	}
}

func TestChatCompletionNoChoicesIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cmpl-1", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL))
	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	require.Error(t, err)

	var protoErr *ProtocolError
	assert.True(t, errors.As(err, &protoErr))
}

func TestChatCompletionNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(WithBaseURL(srv.URL))
	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion failed")
}

type countingClient struct {
	calls []time.Time
}

func (c *countingClient) ChatCompletion(_ context.Context, _ ChatRequest) (*ChatResponse, error) {
	c.calls = append(c.calls, time.Now())
	return &ChatResponse{Content: "ok"}, nil
}

func TestWithPacingSpacesCalls(t *testing.T) {
	inner := &countingClient{}
	client := WithPacing(inner, 40*time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err := client.ChatCompletion(context.Background(), ChatRequest{})
		require.NoError(t, err)
	}

	require.Len(t, inner.calls, 3)
	assert.GreaterOrEqual(t, inner.calls[2].Sub(inner.calls[0]), 70*time.Millisecond)
}

func TestWithPacingZeroDelayIsPassthrough(t *testing.T) {
	inner := &countingClient{}
	assert.Same(t, Client(inner), WithPacing(inner, 0))
}
