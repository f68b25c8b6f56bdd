package commands

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml"
	"github.com/spf13/cobra"

	"github.com/mpwrd/mpwrd-config/pkg/model"
	"github.com/mpwrd/mpwrd-config/pkg/store"
)

func newShowCommand() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the desired or live configuration",
		Long: `Print the desired configuration from the store file, or with
--live the current system state read through the adapters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			cfg, err := rt.store.Load()
			if store.IsNotFound(err) {
				fmt.Fprintf(os.Stderr, "note: %s not found, using defaults\n", rt.store.Path())
				cfg, err = model.Default(), nil
			}
			if err != nil {
				return err
			}

			if live {
				snapshot, readFailures := rt.reconciler().CurrentState(ctx, cfg)
				for _, rf := range readFailures {
					fmt.Fprintf(os.Stderr, "warning: %v\n", rf)
				}
				cfg = snapshot
			}

			if jsonOutput {
				return encodeJSON(cfg)
			}
			raw, err := toml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(raw))
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "show live system state instead of the store file")
	return cmd
}
