package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpwrd/mpwrd-config/pkg/history"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded reconciliation runs",
		Long: `List recent reconciliation runs from the local journal, or show
the field-level outcomes of one run by id.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if rt.journal == nil {
				return fmt.Errorf("run history is unavailable")
			}

			if len(args) == 1 {
				changes, err := rt.journal.ListChanges(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return encodeJSON(changes)
				}
				if len(changes) == 0 {
					fmt.Println("no recorded changes for this run")
					return nil
				}
				for _, c := range changes {
					if c.Outcome == history.OutcomeFailed {
						fmt.Printf("  FAILED  %-30s %s\n", c.Field, c.Error)
						continue
					}
					fmt.Printf("  applied %-30s %s -> %s\n", c.Field, orEmpty(c.Before), orEmpty(c.After))
				}
				return nil
			}

			runs, err := rt.journal.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return encodeJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Println("no recorded runs")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %-17s planned=%d applied=%d failed=%d  %s (%s)\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.State,
					r.Planned, r.Applied, r.Failed, r.ID, r.Duration)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}
