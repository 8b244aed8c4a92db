package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/wrapper-eval/internal/validate"
)

func newValidateCmd() *cobra.Command {
	var allowPartial bool

	cmd := &cobra.Command{
		Use:   "validate <run-dir>",
		Short: "Check a run directory for missing artifacts and signals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := validate.Run(args[0], allowPartial)
			var invalid *validate.Error
			if errors.As(err, &invalid) {
				fmt.Printf("Run %s is invalid:\n", invalid.Dir)
				for _, p := range invalid.Problems {
					fmt.Printf("  - %s\n", p)
				}
				return fmt.Errorf("%d validation problems", len(invalid.Problems))
			}
			if err != nil {
				return err
			}
			fmt.Printf("Run %s is valid.\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "Allow generations and scores to differ")

	return cmd
}
