package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpwrd/mpwrd-config/pkg/model"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file against the schema",
		Long: `Load and validate the configuration file. Every violation is
reported, not just the first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			cfg, err := rt.store.Load()
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				var ve *model.ValidationError
				if errors.As(err, &ve) {
					fmt.Printf("%d violation(s) in %s:\n", len(ve.Violations), rt.store.Path())
					for _, v := range ve.Violations {
						fmt.Printf("  %-32s %s\n", v.Field, v.Message)
					}
				}
				return fmt.Errorf("configuration is invalid")
			}

			fmt.Printf("%s is valid\n", rt.store.Path())
			return nil
		},
	}
}
