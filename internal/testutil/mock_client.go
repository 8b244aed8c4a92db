// Package testutil provides shared test helpers.
package testutil

import (
	"context"

	"github.com/giantswarm/wrapper-eval/internal/llm"
)

// MockLLMClient is a configurable mock for llm.Client used across test packages.
type MockLLMClient struct {
	// Responses maps the last user message to a canned response.
	Responses map[string]string

	// DefaultResponse is returned when no matching key is found in Responses.
	DefaultResponse string

	// Usage is attached to every response when set.
	Usage *llm.Usage

	// Err, when set, is returned from every call.
	Err error

	// Calls tracks the number of ChatCompletion invocations.
	Calls int

	// Requests records every request in call order.
	Requests []llm.ChatRequest
}

func (m *MockLLMClient) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.Calls++
	m.Requests = append(m.Requests, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if resp, ok := m.Responses[LastUserMessage(req)]; ok {
		return &llm.ChatResponse{Content: resp, Usage: m.Usage}, nil
	}

	if m.DefaultResponse != "" {
		return &llm.ChatResponse{Content: m.DefaultResponse, Usage: m.Usage}, nil
	}

	return &llm.ChatResponse{Content: "mock response", Usage: m.Usage}, nil
}

// LastRequest returns the most recent request, or a zero request.
func (m *MockLLMClient) LastRequest() llm.ChatRequest {
	if len(m.Requests) == 0 {
		return llm.ChatRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// LastUserMessage returns the content of the final user turn in req.
func LastUserMessage(req llm.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}
