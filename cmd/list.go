package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/registry"
	"github.com/giantswarm/wrapper-eval/internal/summary"
)

func newListCmd() *cobra.Command {
	var (
		runsDir string
		dbPath  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List evaluation runs",
		Long: `List the runs under the runs directory, or the runs recorded in an SQLite
index when --db is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				entries []registry.Entry
				err     error
			)
			if dbPath != "" {
				store, err := registry.OpenStore(dbPath)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				entries, err = store.List(cmd.Context())
				if err != nil {
					return err
				}
			} else {
				entries, err = registry.Scan(runsDir)
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}
			}

			if len(entries) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			fmt.Printf("Runs:\n\n")
			for _, e := range entries {
				fmt.Printf("  - %s\n", e.RunID)
				fmt.Printf("    Provider: %s (%s)\n", e.Provider, e.Model)
				fmt.Printf("    Wrappers: %d\n", e.WrapperCount)
				if e.NeutralTrainMean != nil || e.NeutralEvalMean != nil {
					fmt.Printf("    Neutral train/eval: %s / %s\n",
						summary.FormatValue(e.NeutralTrainMean), summary.FormatValue(e.NeutralEvalMean))
				}
				if e.SelectedWrapper != "" {
					fmt.Printf("    Selected: %s (%s) vs %s (%s)\n",
						e.SelectedWrapper, summary.FormatValue(e.SelectedEvalMean),
						e.BaselineWrapper, summary.FormatValue(e.BaselineEvalMean))
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runsDir, "runs-dir", defaultOutRoot, "Directory holding run directories")
	cmd.Flags().StringVar(&dbPath, "db", "", "Read runs from this SQLite index instead")

	return cmd
}
