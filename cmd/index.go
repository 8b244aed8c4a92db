package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/registry"
)

func newIndexCmd() *cobra.Command {
	var (
		runsDir string
		csvPath string
		dbPath  string
		withDB  bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the runs directory into index.csv and optionally SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := registry.Scan(runsDir)
			if err != nil {
				return err
			}

			if csvPath == "" {
				csvPath = filepath.Join(runsDir, registry.IndexCSVFile)
			}
			if err := registry.WriteCSV(csvPath, entries); err != nil {
				return fmt.Errorf("failed to write index: %w", err)
			}
			fmt.Printf("Indexed %d runs into %s\n", len(entries), csvPath)

			if !withDB && dbPath == "" {
				return nil
			}
			if dbPath == "" {
				dbPath = filepath.Join(runsDir, registry.IndexDBFile)
			}
			store, err := registry.OpenStore(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Upsert(cmd.Context(), entries); err != nil {
				return err
			}
			fmt.Printf("Upserted %d runs into %s\n", len(entries), dbPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&runsDir, "runs-dir", defaultOutRoot, "Directory holding run directories")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Index CSV path (default: <runs-dir>/index.csv)")
	cmd.Flags().BoolVar(&withDB, "sqlite", false, "Also upsert the index into <runs-dir>/index.db")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite index path (implies --sqlite)")

	return cmd
}
