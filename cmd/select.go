package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/selection"
)

// selectionFlags are shared by select and search.
type selectionFlags struct {
	provider  providerFlags
	judges    judgeFlags
	inputs    batteryFlags
	deploy    deployFlags
	outRoot   string
	groupID   string
	baselines []string
	topK      int
	examples  int
}

func (f *selectionFlags) bind(cmd *cobra.Command) {
	f.provider.bind(cmd)
	f.judges.bind(cmd)
	f.inputs.bind(cmd)
	f.deploy.bind(cmd)
	cmd.Flags().StringVar(&f.outRoot, "out-root", defaultOutRoot, "Directory holding the stage runs")
	cmd.Flags().StringVar(&f.groupID, "group-id", "", "Group id prefixing both stage runs (default: generated)")
	cmd.Flags().StringSliceVar(&f.baselines, "baselines", []string{selection.DefaultBaseline}, "Baseline wrapper ids evaluated with the selection")
	cmd.Flags().IntVar(&f.topK, "top-k", selection.DefaultTopK, "Number of wrappers to select")
	cmd.Flags().IntVar(&f.examples, "examples", selection.DefaultExampleLimit, "Maximum paired examples in examples.jsonl")
}

// config loads the battery into a selection config for groupPrefix.
func (f *selectionFlags) config(groupPrefix string) (selection.Config, error) {
	prompts, bases, err := f.inputs.load()
	if err != nil {
		return selection.Config{}, err
	}
	groupID := f.groupID
	if groupID == "" {
		groupID = selection.NewGroupID(groupPrefix)
	}
	return selection.Config{
		OutRoot:      f.outRoot,
		GroupID:      groupID,
		Prompts:      prompts,
		Bases:        bases,
		Baselines:    f.baselines,
		TopK:         f.topK,
		ExampleLimit: f.examples,
		PromptsPath:  f.inputs.promptsPath,
		WrappersPath: f.inputs.wrappersPath,
	}, nil
}

func (f *selectionFlags) run(cmd *cobra.Command, cfg selection.Config) error {
	sc, err := f.judges.scorer()
	if err != nil {
		return err
	}
	subject, err := f.deploy.subject(cmd, f.provider.cfg, cfg.GroupID)
	if err != nil {
		return err
	}

	res, err := selection.RunSubject(cmd.Context(), subject, sc, cfg)
	if err != nil {
		return err
	}
	printResult(res)
	slog.Info("selection complete", "group_id", res.GroupID, "selected", res.Selection.IDs())
	return nil
}

func newSelectCmd() *cobra.Command {
	var flags selectionFlags

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select the best wrapper on train prompts and evaluate it on held-out prompts",
		Long: `Run the two-stage selection over the wrappers file.

The train stage ranks every wrapper on train_indicator prompts and freezes
the top-k selection into selection.json. The eval stage then runs the
selection and the baselines on eval_indicator and control prompts and writes
comparison.json and examples.jsonl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config("select")
			if err != nil {
				return err
			}
			return flags.run(cmd, cfg)
		},
	}

	flags.bind(cmd)

	return cmd
}
