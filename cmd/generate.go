package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/runner"
)

func newGenerateCmd() *cobra.Command {
	var (
		provider   providerFlags
		inputs     batteryFlags
		outRoot    string
		runID      string
		splits     []string
		wrapperIDs []string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate completions for every wrapper and prompt",
		Long: `Send every prompt, wrapped by every wrapper, to the completion provider and
record the results in a new run directory (config.json, wrappers.jsonl,
generations.jsonl).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := battery.ParseSplits(splits)
			if err != nil {
				return err
			}
			prompts, wrappers, err := inputs.load()
			if err != nil {
				return err
			}

			p, err := runner.GetProvider(provider.cfg)
			if err != nil {
				return err
			}

			r := runner.NewRunner(p, outRoot)
			r.SetProgressFunc(printProgress)

			run, gens, err := r.Run(cmd.Context(), prompts, wrappers, runner.Options{
				RunID:        runID,
				Splits:       parsed,
				WrapperIDs:   wrapperIDs,
				PromptsPath:  inputs.promptsPath,
				WrappersPath: inputs.wrappersPath,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Run: %s\n", run.Dir)
			fmt.Printf("Generations: %d\n", len(gens))
			slog.Info("generation complete", "run_id", run.ID)
			return nil
		},
	}

	provider.bind(cmd)
	inputs.bind(cmd)
	cmd.Flags().StringVar(&outRoot, "out-root", defaultOutRoot, "Directory holding run directories")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id (default: run_<10 hex>)")
	cmd.Flags().StringSliceVar(&splits, "splits", nil, "Only prompts in these splits")
	cmd.Flags().StringSliceVar(&wrapperIDs, "wrapper-ids", nil, "Only these wrappers")

	return cmd
}
