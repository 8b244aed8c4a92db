package cmd

import (
	"fmt"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/kserve"
	mcptools "github.com/giantswarm/wrapper-eval/internal/mcp"
	"github.com/giantswarm/wrapper-eval/internal/server"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

func newServeCmd() *cobra.Command {
	var (
		transport    string
		httpAddr     string
		httpEndpoint string
		inCluster    bool
		enableKServe bool
		runsDir      string
		catalogPath  string
		provider     providerFlags
		judges       judgeFlags
		inputs       batteryFlags

		enableOAuth     bool
		oauthBaseURL    string
		oauthProvider   string
		dexIssuerURL    string
		dexClientID     string
		dexClientSecret string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server to expose run inspection, wrapper search and subject
model management via the Model Context Protocol.

Supports multiple transport types:
  - stdio: Standard input/output (default, for IDE integration)
  - streamable-http: HTTP with streaming support (for remote access)

When using streamable-http transport, OAuth 2.1 authentication can be enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			judgeCfg, err := judges.config()
			if err != nil {
				return err
			}

			sc := &server.ServerContext{
				Provider:     provider.cfg,
				Judges:       judgeCfg,
				RunsDir:      runsDir,
				PromptsPath:  inputs.promptsPath,
				WrappersPath: inputs.wrappersPath,
				CatalogPath:  catalogPath,
			}

			if enableKServe {
				namespace, _ := cmd.Flags().GetString("namespace")
				kubeconfig, _ := cmd.Flags().GetString("kubeconfig")
				manager, err := kserve.NewManager(namespace, kubeconfig, inCluster)
				if err != nil {
					slog.Warn("KServe manager not available", "error", err)
				} else {
					sc.Deployer = manager
				}
			}

			mcpSrv := mcpserver.NewMCPServer("wrapper-eval", rootCmd.Version,
				mcpserver.WithToolCapabilities(true),
			)
			if err := mcptools.RegisterTools(mcpSrv, sc); err != nil {
				return fmt.Errorf("failed to register MCP tools: %w", err)
			}

			switch transport {
			case transportStdio:
				if err := mcpserver.ServeStdio(mcpSrv); err != nil {
					return fmt.Errorf("server stopped with error: %w", err)
				}
				return nil
			case transportStreamableHTTP:
				httpCfg := server.HTTPConfig{Addr: httpAddr, Endpoint: httpEndpoint, RunsDir: runsDir}
				if enableOAuth {
					oauthCfg, err := resolveOAuthConfig(server.OAuthConfig{
						BaseURL:         oauthBaseURL,
						Provider:        oauthProvider,
						DexIssuerURL:    dexIssuerURL,
						DexClientID:     dexClientID,
						DexClientSecret: dexClientSecret,
					})
					if err != nil {
						return err
					}
					httpCfg.OAuth = &oauthCfg
				}

				srv, err := server.NewHTTPServer(mcpSrv, httpCfg)
				if err != nil {
					return fmt.Errorf("failed to create HTTP server: %w", err)
				}
				slog.Info("starting wrapper-eval MCP server",
					"transport", transport,
					"addr", httpAddr,
					"endpoint", httpEndpoint,
					"oauth", enableOAuth,
				)
				return srv.Serve(cmd.Context())
			default:
				return fmt.Errorf("unsupported transport: %s (supported: stdio, streamable-http)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http)")
	cmd.Flags().StringVar(&httpEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http)")
	cmd.Flags().BoolVar(&enableKServe, "kserve", false, "Enable subject model deployment via KServe")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")
	cmd.Flags().StringVar(&runsDir, "runs-dir", defaultOutRoot, "Directory holding run directories")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Strategy/style catalog YAML for run_search (default: embedded)")
	provider.bind(cmd)
	judges.bind(cmd)
	inputs.bind(cmd)

	cmd.Flags().BoolVar(&enableOAuth, "enable-oauth", false, "Enable OAuth 2.1 authentication (for HTTP transport)")
	cmd.Flags().StringVar(&oauthBaseURL, "oauth-base-url", "", "OAuth base URL (e.g. https://wrapper-eval.example.com)")
	cmd.Flags().StringVar(&oauthProvider, "oauth-provider", server.OAuthProviderDex, "OAuth provider: dex")
	cmd.Flags().StringVar(&dexIssuerURL, "dex-issuer-url", "", "Dex OIDC issuer URL")
	cmd.Flags().StringVar(&dexClientID, "dex-client-id", "", "Dex OAuth client ID")
	cmd.Flags().StringVar(&dexClientSecret, "dex-client-secret", "", "Dex OAuth client secret")

	return cmd
}

// resolveOAuthConfig fills Dex credentials from the environment and checks
// that everything required is set.
func resolveOAuthConfig(cfg server.OAuthConfig) (server.OAuthConfig, error) {
	if cfg.DexIssuerURL == "" {
		cfg.DexIssuerURL = os.Getenv("DEX_ISSUER_URL")
	}
	if cfg.DexClientID == "" {
		cfg.DexClientID = os.Getenv("DEX_CLIENT_ID")
	}
	if cfg.DexClientSecret == "" {
		cfg.DexClientSecret = os.Getenv("DEX_CLIENT_SECRET")
	}

	switch {
	case cfg.BaseURL == "":
		return cfg, fmt.Errorf("--oauth-base-url is required when --enable-oauth is set")
	case cfg.DexIssuerURL == "":
		return cfg, fmt.Errorf("dex issuer URL is required (--dex-issuer-url or DEX_ISSUER_URL)")
	case cfg.DexClientID == "":
		return cfg, fmt.Errorf("dex client ID is required (--dex-client-id or DEX_CLIENT_ID)")
	case cfg.DexClientSecret == "":
		return cfg, fmt.Errorf("dex client secret is required (--dex-client-secret or DEX_CLIENT_SECRET)")
	}
	return cfg, nil
}
