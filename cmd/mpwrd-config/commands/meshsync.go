package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpwrd/mpwrd-config/pkg/watch"
)

func newMeshSyncCommand() *cobra.Command {
	var (
		once     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mesh-sync",
		Short: "Keep the Meshtastic radio's wifi flag aligned with the store",
		Long: `The Meshtastic radio stores its own wifi flag. This loop pushes
the configuration file's wifi_enabled value to the radio whenever the
two disagree.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			sync := watch.NewMeshSync(
				rt.store.Load,
				watch.WithMeshInterval(interval),
				watch.WithMeshLogger(rt.logger.With().Str("component", "mesh-sync").Logger()),
			)

			if once {
				changed, err := sync.SyncOnce(ctx)
				if err != nil {
					return err
				}
				if changed {
					fmt.Println("radio wifi flag updated")
				} else {
					fmt.Println("radio already in sync")
				}
				return nil
			}

			err = sync.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single sync and exit")
	cmd.Flags().DurationVar(&interval, "interval", watch.DefaultMeshInterval, "polling interval")
	return cmd
}
