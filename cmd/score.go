package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/runs"
)

func newScoreCmd() *cobra.Command {
	var judges judgeFlags

	cmd := &cobra.Command{
		Use:   "score <run-dir>",
		Short: "Score a run's generations with the judge channels",
		Long: `Derive per-generation signals (probability, YES/NO answer, task pass) and
aggregate the judge channels' indicator scores into scores.jsonl.

Judge parameter flags take one value for all channels or one value per
channel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := runs.Open(args[0])
			if err != nil {
				return err
			}
			sc, err := judges.scorer()
			if err != nil {
				return err
			}

			fmt.Printf("Scoring: %s\n", run.Dir)
			fmt.Printf("Judges: %v\n", sc.ChannelIDs())

			scores, err := sc.ScoreRun(cmd.Context(), run)
			if err != nil {
				return err
			}

			fmt.Printf("Scores written to: %s (%d records)\n", run.Path(runs.ScoresFile), len(scores))
			return nil
		},
	}

	judges.bind(cmd)

	return cmd
}
