package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpwrd/mpwrd-config/pkg/engine"
)

func newDiffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show what apply would change",
		Long: `Read live system state through the adapters and diff it against
the configuration file. Nothing is mutated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			desired, err := rt.store.Load()
			if err != nil {
				return err
			}
			if err := desired.Validate(); err != nil {
				return err
			}

			current, readFailures := rt.reconciler().CurrentState(ctx, desired)
			for _, rf := range readFailures {
				fmt.Fprintf(os.Stderr, "warning: %v\n", rf)
			}

			changes := engine.Diff(desired, current)
			if jsonOutput {
				return encodeJSON(changes)
			}
			printChanges(changes)
			return nil
		},
	}
}
