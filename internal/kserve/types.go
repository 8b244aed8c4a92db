// Package kserve deploys the subject model behind an OpenAI-compatible
// endpoint as a KServe InferenceService for the duration of a selection.
package kserve

import (
	"strings"
	"time"
)

// Subject model defaults.
const (
	DefaultRuntime      = "kserve-vllm"
	DefaultGPUCount     = 1
	DefaultReadyTimeout = 10 * time.Minute
	DefaultNamespace    = "wrapper-eval"
)

// SubjectModel describes the model whose completions are evaluated.
type SubjectModel struct {
	// Name is the InferenceService name. It is sanitized to a DNS label.
	Name string

	// ModelURI is the storage URI, e.g. "hf://mistralai/Mistral-7B-Instruct-v0.3".
	ModelURI string

	Runtime     string
	GPUCount    int
	RuntimeArgs []string

	// Group labels the deployment with the selection group that owns it.
	Group string

	ReadyTimeout time.Duration
}

// NewSubjectModel returns a SubjectModel with the default runtime, one GPU
// and the default ready timeout.
func NewSubjectModel(name, modelURI string) SubjectModel {
	return SubjectModel{
		Name:         name,
		ModelURI:     modelURI,
		Runtime:      DefaultRuntime,
		GPUCount:     DefaultGPUCount,
		ReadyTimeout: DefaultReadyTimeout,
	}
}

// Deployment is the observed state of a subject model.
type Deployment struct {
	Name      string `json:"name"`
	Group     string `json:"group,omitempty"`
	Ready     bool   `json:"ready"`
	BaseURL   string `json:"base_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ChatEndpoint returns the chat completions URL served under BaseURL.
func (d Deployment) ChatEndpoint() string {
	if d.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(d.BaseURL, "/") + "/chat/completions"
}
