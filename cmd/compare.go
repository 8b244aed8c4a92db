package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/compare"
	"github.com/giantswarm/wrapper-eval/internal/runs"
)

func newCompareCmd() *cobra.Command {
	var (
		wrappers []string
		metrics  []string
		outDir   string
	)

	cmd := &cobra.Command{
		Use:   "compare <baseline-run-dir> <candidate-run-dir>",
		Short: "Compare the summaries of two runs",
		Long: `Compare summary metrics of two runs per wrapper and write compare.json and
compare.md. Without --wrappers, the wrappers present in both runs are compared.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseline, err := runs.Open(args[0])
			if err != nil {
				return err
			}
			candidate, err := runs.Open(args[1])
			if err != nil {
				return err
			}

			report, err := compare.Runs(baseline, candidate, wrappers, metrics)
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = candidate.Dir
			}
			if err := compare.WriteReport(outDir, report); err != nil {
				return err
			}

			fmt.Print(report.Markdown())
			fmt.Printf("\nReport written to: %s\n", outDir)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&wrappers, "wrappers", nil, "Wrapper ids to compare")
	cmd.Flags().StringSliceVar(&metrics, "metrics", nil, "Summary metrics to compare")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default: the candidate run)")

	return cmd
}
