package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpwrd/mpwrd-config/pkg/engine"
)

func newApplyCommand() *cobra.Command {
	var (
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile the system with the configuration file",
		Long: `Run one reconciliation: read current state, diff it against the
configuration file, and apply only the changed fields.

Applying twice in a row changes nothing the second time. A field that
fails does not stop the remaining fields; every failure is reported.`,
		Example: `  # Preview without mutating anything
  mpwrd-config apply --dry-run

  # Apply even when a guardrail policy objects
  mpwrd-config apply --force`,
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

			res, err := rt.reconciler().Reconcile(ctx, desired, engine.ApplyOptions{
				DryRun: dryRun,
				Force:  force,
			})
			var blocked *engine.PolicyBlockedError
			if errors.As(err, &blocked) {
				for _, v := range blocked.Violations {
					fmt.Printf("  blocked [%s]: %s\n", v.Policy, v.Message)
				}
				return fmt.Errorf("change set blocked by policy (use --force to override)")
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := encodeJSON(res); err != nil {
					return err
				}
			} else if dryRun {
				printChanges(res.Planned)
			} else {
				printResult(res)
			}

			if res.State == engine.RunStatePartiallyFailed {
				return fmt.Errorf("%d field(s) failed to apply", len(res.Failures))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the diff without applying")
	cmd.Flags().BoolVar(&force, "force", false, "apply even when policy blocks the change set")
	return cmd
}
