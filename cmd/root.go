package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/kserve"
)

var rootCmd = &cobra.Command{
	Use:   "wrapper-eval",
	Short: "Evaluate and select wrapper system prompts",
	Long: `wrapper-eval measures how wrapper system prompts shift a model's answers.

It generates completions for a prompt battery under each wrapper, scores them
with heuristic and model judges, summarizes indicator and control metrics per
wrapper, and selects wrappers on train prompts before evaluating them on
held-out prompts. Subject models can be served via KServe and all run
inspection is exposed over an MCP server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}

		// Variables already set in the environment take precedence.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load .env", "error", err)
		}
	},
}

var (
	buildCommit = "unknown"
	buildDate   = "unknown"
)

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// SetBuildInfo sets the commit and build date for the version command.
func SetBuildInfo(commit, date string) {
	buildCommit = commit
	buildDate = date
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "wrapper-eval version %s\n" .Version}}`)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newCompareCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSelectCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newSmokeCmd())
	rootCmd.AddCommand(newServeCmd())

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to kubeconfig file")
	rootCmd.PersistentFlags().StringP("namespace", "n", kserve.DefaultNamespace, "Kubernetes namespace for InferenceService resources")
}
