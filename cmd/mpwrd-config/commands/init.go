package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpwrd/mpwrd-config/pkg/model"
	"github.com/mpwrd/mpwrd-config/pkg/store"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the configuration file with defaults",
		Long: `Create the configuration file with every field at its default:
hostname "mpwrd", country "US", wifi disabled, no managed services or
peripherals. Refuses to overwrite an existing file unless --force is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			_, err = rt.store.Load()
			switch {
			case err == nil && !force:
				return fmt.Errorf("%s already exists (use --force to overwrite)", rt.store.Path())
			case err == nil || store.IsNotFound(err):
			case store.IsParseError(err) && force:
				// A forced init replaces a broken file outright.
				if err := os.Remove(rt.store.Path()); err != nil {
					return err
				}
			default:
				return err
			}

			if err := rt.store.Save(model.Default()); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", rt.store.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
