package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/runner"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
	"github.com/giantswarm/wrapper-eval/internal/search"
	"github.com/giantswarm/wrapper-eval/internal/selection"
	"github.com/giantswarm/wrapper-eval/internal/validate"
)

func newSmokeCmd() *cobra.Command {
	var outRoot string

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run an offline end-to-end search with the stub provider",
		Long: `Run a search over the embedded battery and catalog with the stub provider and
the heuristic judge, including the base wrappers and the terse style shift,
then validate both stage runs. No network access is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var inputs batteryFlags
			prompts, bases, err := inputs.load()
			if err != nil {
				return err
			}
			catalog, err := search.LoadCatalog("")
			if err != nil {
				return err
			}
			sc, err := scorer.NewScorer()
			if err != nil {
				return err
			}

			cfg := selection.Config{
				OutRoot: outRoot,
				GroupID: selection.NewGroupID("smoke"),
				Prompts: prompts,
				Bases:   bases,
			}
			opts := selection.SearchOptions{Catalog: catalog, Styles: []string{"terse"}, IncludeBase: true}
			if err := opts.Apply(&cfg); err != nil {
				return err
			}

			res, err := selection.RunSubject(cmd.Context(), selection.Subject{
				Provider: runner.ProviderConfig{Name: runner.ProviderStub},
			}, sc, cfg)
			if err != nil {
				return err
			}
			printResult(res)

			for _, dir := range []string{res.TrainRun.Dir, res.EvalRun.Dir} {
				if err := validate.Run(dir, false); err != nil {
					return err
				}
			}
			fmt.Println("\nSmoke run passed validation.")
			return nil
		},
	}

	cmd.Flags().StringVar(&outRoot, "out-root", defaultOutRoot, "Directory holding the stage runs")

	return cmd
}
