package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpwrd/mpwrd-config/pkg/watch"
)

func newWatchclockCommand() *cobra.Command {
	var (
		once      bool
		interval  time.Duration
		threshold time.Duration
		service   string
		stateFile string
	)

	cmd := &cobra.Command{
		Use:   "watchclock",
		Short: "Restart the mesh daemon after a large system clock jump",
		Long: `Boards without an RTC boot far in the past and jump to real time
on the first NTP sync. A jump past the threshold leaves the mesh daemon
with bogus timestamps, so it gets restarted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			clock := watch.NewWatchclock(
				watch.WithClockInterval(interval),
				watch.WithClockThreshold(threshold),
				watch.WithClockService(service),
				watch.WithClockStatePath(stateFile),
				watch.WithClockLogger(rt.logger.With().Str("component", "watchclock").Logger()),
			)

			if once {
				jumped, err := clock.CheckOnce(ctx)
				if err != nil {
					return err
				}
				if jumped {
					fmt.Printf("clock jump handled, %s restarted\n", service)
				}
				return nil
			}

			err = clock.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single check and exit")
	cmd.Flags().DurationVar(&interval, "interval", watch.DefaultClockInterval, "polling interval")
	cmd.Flags().DurationVar(&threshold, "threshold", watch.DefaultClockThreshold, "clock jump size that triggers a restart")
	cmd.Flags().StringVar(&service, "service", watch.DefaultClockService, "unit to restart on a jump")
	cmd.Flags().StringVar(&stateFile, "state-file", watch.DefaultClockStatePath, "persisted timestamp location")
	return cmd
}
