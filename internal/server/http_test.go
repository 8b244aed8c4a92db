package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "https is valid", baseURL: "https://wrapper-eval.example.com"},
		{name: "localhost http is valid", baseURL: "http://localhost:8080"},
		{name: "127.0.0.1 http is valid", baseURL: "http://127.0.0.1:8080"},
		{name: "ipv6 loopback http is valid", baseURL: "http://[::1]:8080"},
		{name: "non-localhost http is invalid", baseURL: "http://example.com", wantErr: true},
		{name: "empty URL is invalid", baseURL: "", wantErr: true},
		{name: "ftp scheme is invalid", baseURL: "ftp://example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewHTTPServerRejectsUnknownProvider(t *testing.T) {
	_, err := NewHTTPServer(mcpserver.NewMCPServer("test", "dev"), HTTPConfig{
		OAuth: &OAuthConfig{BaseURL: "https://wrapper-eval.example.com", Provider: "okta"},
	})
	assert.ErrorContains(t, err, `unsupported OAuth provider "okta"`)
}

func newTestServer(t *testing.T, runsDir string) *httptest.Server {
	t.Helper()
	s, err := NewHTTPServer(mcpserver.NewMCPServer("test", "dev"), HTTPConfig{RunsDir: runsDir})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, filepath.Join(t.TempDir(), "not-created-yet"))

	code, _, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _, _ = get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestReadyFailsWhenRunsDirIsAFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	srv := newTestServer(t, path)

	code, _, _ := get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServeArtifact(t *testing.T) {
	root := t.TempDir()
	runDir := filepath.Join(root, "run_0123456789")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "summary.csv"), []byte("wrapper_id\nneutral\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "notes.txt"), []byte("private"), 0o644))
	srv := newTestServer(t, root)

	code, contentType, body := get(t, srv.URL+"/runs/run_0123456789/summary.csv")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "text/csv; charset=utf-8", contentType)
	assert.Equal(t, "wrapper_id\nneutral\n", body)

	tests := []struct {
		name string
		path string
	}{
		{"unknown file", "/runs/run_0123456789/notes.txt"},
		{"missing artifact", "/runs/run_0123456789/scores.jsonl"},
		{"missing run", "/runs/run_missing/summary.csv"},
		{"escaped traversal", "/runs/%2E%2E/summary.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := get(t, srv.URL+tt.path)
			assert.Equal(t, http.StatusNotFound, code)
		})
	}
}
