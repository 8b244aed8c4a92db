package cmd

import (
	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/search"
	"github.com/giantswarm/wrapper-eval/internal/selection"
)

func newSearchCmd() *cobra.Command {
	var (
		flags       selectionFlags
		catalogPath string
		baseIDs     []string
		strategies  []string
		styles      []string
		includeBase bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search strategy variants of the base wrappers",
		Long: `Build candidates by appending catalog strategies to the chosen base
wrappers, then run the two-stage selection over them. Baselines may name any
wrapper in the wrappers file. Style shifts, when given, are only
applied in the eval stage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := search.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}
			cfg, err := flags.config("search")
			if err != nil {
				return err
			}
			opts := selection.SearchOptions{
				Catalog:      catalog,
				BaseWrappers: baseIDs,
				Strategies:   strategies,
				Styles:       styles,
				IncludeBase:  includeBase,
			}
			if err := opts.Apply(&cfg); err != nil {
				return err
			}
			return flags.run(cmd, cfg)
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Strategy/style catalog YAML (default: embedded catalog)")
	cmd.Flags().StringSliceVar(&baseIDs, "base-wrappers", selection.DefaultSearchBases, "Base wrapper ids the strategies are appended to")
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "Strategy ids (default: all)")
	cmd.Flags().StringSliceVar(&styles, "styles", nil, "Style shift ids for the eval stage")
	cmd.Flags().BoolVar(&includeBase, "include-base", false, "Also rank the unmodified base wrappers")

	return cmd
}
