package server

import (
	"github.com/giantswarm/wrapper-eval/internal/kserve"
	"github.com/giantswarm/wrapper-eval/internal/runner"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
)

// ServerContext holds shared dependencies for MCP tool handlers.
type ServerContext struct {
	// Deployer is nil when KServe is not available.
	Deployer kserve.Deployer

	// Provider and Judges configure runs started through run_search.
	Provider runner.ProviderConfig
	Judges   scorer.ChannelConfig

	RunsDir      string
	PromptsPath  string
	WrappersPath string
	CatalogPath  string
}
