package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	oauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers/dex"
	oauthserver "github.com/giantswarm/mcp-oauth/server"
	"github.com/giantswarm/mcp-oauth/storage/memory"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/wrapper-eval/internal/runs"
)

const (
	// OAuthProviderDex is the Dex OIDC provider.
	OAuthProviderDex = "dex"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 10 * time.Second

	// Searches run inside a single tool call and can take far longer than a
	// plain request.
	defaultWriteTimeout = 30 * time.Minute
)

// artifactTypes are the run files served under /runs/ with their content type.
var artifactTypes = map[string]string{
	runs.ConfigFile:      "application/json",
	runs.WrappersFile:    "application/x-ndjson",
	runs.GenerationsFile: "application/x-ndjson",
	runs.ScoresFile:      "application/x-ndjson",
	runs.SummaryFile:     "text/csv; charset=utf-8",
	runs.SelectionFile:   "application/json",
	runs.ComparisonFile:  "application/json",
	runs.ExamplesFile:    "application/x-ndjson",
}

// OAuthConfig holds configuration for OAuth 2.1 protection of the HTTP server.
type OAuthConfig struct {
	// BaseURL is the server's public base URL (e.g. https://wrapper-eval.example.com).
	BaseURL string

	// Provider is the OAuth provider name. Only "dex" is supported.
	Provider string

	DexIssuerURL    string
	DexClientID     string
	DexClientSecret string
}

// HTTPConfig configures the streamable HTTP server.
type HTTPConfig struct {
	Addr     string
	Endpoint string

	// RunsDir is served read-only under /runs/{run_id}/{file}.
	RunsDir string

	// OAuth, when set, protects the MCP endpoint and the run artifacts.
	OAuth *OAuthConfig
}

// HTTPServer serves the MCP server over streamable HTTP.
type HTTPServer struct {
	cfg          HTTPConfig
	mcpServer    *mcpserver.MCPServer
	oauthServer  *oauth.Server
	oauthHandler *oauth.Handler
	httpServer   *http.Server
}

// NewHTTPServer creates the HTTP server, setting up OAuth when cfg.OAuth is set.
func NewHTTPServer(mcpSrv *mcpserver.MCPServer, cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/mcp"
	}
	s := &HTTPServer{cfg: cfg, mcpServer: mcpSrv}
	if cfg.OAuth == nil {
		return s, nil
	}

	o := cfg.OAuth
	if o.Provider != "" && o.Provider != OAuthProviderDex {
		return nil, fmt.Errorf("unsupported OAuth provider %q (supported: %s)", o.Provider, OAuthProviderDex)
	}
	if err := validateHTTPSRequirement(o.BaseURL); err != nil {
		return nil, fmt.Errorf("OAuth base URL validation failed: %w", err)
	}

	dexProvider, err := dex.NewProvider(&dex.Config{
		IssuerURL:    o.DexIssuerURL,
		ClientID:     o.DexClientID,
		ClientSecret: o.DexClientSecret,
		RedirectURL:  o.BaseURL + "/oauth/callback",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Dex provider: %w", err)
	}

	// Single replica, so tokens and clients live in memory.
	store := memory.New()
	logger := slog.Default()

	s.oauthServer, err = oauth.NewServer(
		dexProvider,
		store,
		store,
		store,
		&oauthserver.Config{
			Issuer:                    o.BaseURL,
			AllowRefreshTokenRotation: true,
			MaxClientsPerIP:           10,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}
	s.oauthHandler = oauth.NewHandler(s.oauthServer, logger)
	return s, nil
}

// Handler returns the HTTP routes of the server.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.Handler) http.Handler { return h }
	if s.oauthHandler != nil {
		s.oauthHandler.RegisterAuthorizationServerMetadataRoutes(mux)
		s.oauthHandler.RegisterProtectedResourceMetadataRoutes(mux, s.cfg.Endpoint)
		mux.HandleFunc("/oauth/authorize", s.oauthHandler.ServeAuthorization)
		mux.HandleFunc("/oauth/token", s.oauthHandler.ServeToken)
		mux.HandleFunc("/oauth/callback", s.oauthHandler.ServeCallback)
		mux.HandleFunc("/oauth/register", s.oauthHandler.ServeClientRegistration)
		mux.HandleFunc("/oauth/revoke", s.oauthHandler.ServeTokenRevocation)
		mux.HandleFunc("/oauth/introspect", s.oauthHandler.ServeTokenIntrospection)
		protect = func(h http.Handler) http.Handler { return s.oauthHandler.ValidateToken(h) }
	}

	mcpHandler := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(s.cfg.Endpoint),
	)
	mux.Handle(s.cfg.Endpoint, protect(mcpHandler))
	mux.Handle("GET /runs/{run}/{file}", protect(http.HandlerFunc(s.serveArtifact)))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", s.serveReady)

	return mux
}

// serveReady reports whether the runs directory can be listed. A runs
// directory that does not exist yet is ready.
func (s *HTTPServer) serveReady(w http.ResponseWriter, _ *http.Request) {
	if _, err := os.ReadDir(s.cfg.RunsDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("runs directory not readable", "path", s.cfg.RunsDir, "error", err)
		http.Error(w, "runs directory not readable", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func (s *HTTPServer) serveArtifact(w http.ResponseWriter, r *http.Request) {
	runID, file := r.PathValue("run"), r.PathValue("file")
	contentType, ok := artifactTypes[file]
	if !ok || runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(filepath.Join(s.cfg.RunsDir, runID, file))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, file, info.ModTime(), f)
}

// Serve listens on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.oauthServer != nil {
		if err := s.oauthServer.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OAuth server", "error", err)
		}
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1).
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		switch u.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return nil
		}
		return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
	default:
		return fmt.Errorf("invalid URL scheme: %s (must be http for localhost or https)", u.Scheme)
	}
}
