package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/summary"
)

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <run-dir>",
		Short: "Write summary.csv with per-wrapper indicator and control metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := runs.Open(args[0])
			if err != nil {
				return err
			}
			rows, err := summary.SummarizeRun(run)
			if err != nil {
				return err
			}

			fmt.Printf("Summary written to: %s (%d wrappers)\n", run.Path(runs.SummaryFile), len(rows))
			if best := summary.Best(rows, 1); len(best) > 0 {
				fmt.Printf("Best wrapper by %s: %s (%s)\n",
					summary.MetricTrainMean, best[0].WrapperID, summary.FormatValue(best[0].TrainMean))
			}
			return nil
		},
	}
}
