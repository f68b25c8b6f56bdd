package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpwrd/mpwrd-config/pkg/engine"
	"github.com/mpwrd/mpwrd-config/pkg/watch"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile continuously whenever the configuration file changes",
		Long: `Run an initial reconciliation, then watch the configuration file
and reconcile after every edit. Intended to run as a systemd service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			rec := rt.reconciler()
			reconcile := func(ctx context.Context) {
				desired, err := rt.store.Load()
				if err != nil {
					rt.logger.Error().Err(err).Msg("load failed, keeping previous state")
					return
				}
				res, err := rec.Reconcile(ctx, desired, engine.ApplyOptions{})
				if err != nil {
					rt.logger.Error().Err(err).Msg("reconciliation failed")
					return
				}
				rt.logger.Info().
					Str("state", string(res.State)).
					Int("applied", len(res.Applied)).
					Int("failed", len(res.Failures)).
					Msg("reconciled")
			}

			if rt.settings.Metrics.Enabled {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", rt.metrics.Handler())
					if err := http.ListenAndServe(rt.settings.Metrics.Listen, mux); err != nil {
						rt.logger.Warn().Err(err).Msg("metrics endpoint failed")
					}
				}()
			}

			reconcile(ctx)

			watcher := watch.NewWatcher(
				rt.store.Path(),
				watch.WithDebounce(debounce),
				watch.WithWatcherLogger(rt.logger.With().Str("component", "watch").Logger()),
			)
			err = watcher.Run(ctx, reconcile)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "coalesce file events within this window")
	return cmd
}
