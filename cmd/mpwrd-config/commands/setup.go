package commands

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mpwrd/mpwrd-config/pkg/adapters"
	"github.com/mpwrd/mpwrd-config/pkg/adapters/hardware"
	"github.com/mpwrd/mpwrd-config/pkg/adapters/networking"
	"github.com/mpwrd/mpwrd-config/pkg/adapters/services"
	"github.com/mpwrd/mpwrd-config/pkg/engine"
	"github.com/mpwrd/mpwrd-config/pkg/history"
	"github.com/mpwrd/mpwrd-config/pkg/policy"
	"github.com/mpwrd/mpwrd-config/pkg/store"
	"github.com/mpwrd/mpwrd-config/pkg/telemetry"
)

// runtime bundles the collaborators a command needs, built once per
// invocation from the global flags.
type runtime struct {
	logger    zerolog.Logger
	settings  telemetry.Settings
	store     *store.Store
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
	journal   *history.Journal
	shutdowns []func(context.Context)
}

// newRuntime loads telemetry settings and wires the common stack. The
// history journal and tracer are optional: failures there degrade to
// logging, never block the command.
func newRuntime(ctx context.Context) (*runtime, error) {
	settings, err := telemetry.LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Logging.Level = "debug"
	}
	logger, err := telemetry.NewLogger(settings.Logging)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		logger:   logger,
		settings: settings,
		store:    store.New(storePath, store.WithLogger(logger.With().Str("component", "store").Logger())),
		metrics:  telemetry.NewMetrics(),
	}

	tracer, err := telemetry.NewTracer(settings.Tracing, buildVersion)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	} else {
		rt.tracer = tracer
		rt.shutdowns = append(rt.shutdowns, func(ctx context.Context) {
			if err := tracer.Shutdown(ctx); err != nil {
				logger.Debug().Err(err).Msg("tracer shutdown")
			}
		})
	}

	journal := history.New(historyPath, history.WithLogger(logger.With().Str("component", "history").Logger()))
	if err := journal.Init(ctx); err != nil {
		logger.Warn().Err(err).Msg("run history disabled")
	} else {
		rt.journal = journal
		rt.shutdowns = append(rt.shutdowns, func(context.Context) { journal.Close() })
	}

	return rt, nil
}

// close releases runtime resources.
func (rt *runtime) close(ctx context.Context) {
	for i := len(rt.shutdowns) - 1; i >= 0; i-- {
		rt.shutdowns[i](ctx)
	}
}

// reconciler builds the engine over the full adapter set in apply order.
func (rt *runtime) reconciler() *engine.Reconciler {
	adapterSet := []adapters.Adapter{
		networking.New(networking.WithLogger(rt.logger.With().Str("component", "networking").Logger())),
		services.New(services.WithLogger(rt.logger.With().Str("component", "services").Logger())),
		hardware.New(hardware.WithLogger(rt.logger.With().Str("component", "hardware").Logger())),
	}

	opts := []engine.Option{
		engine.WithLogger(rt.logger.With().Str("component", "engine").Logger()),
		engine.WithMetrics(rt.metrics),
		engine.WithPolicyGate(policy.NewEngine(policy.WithLogger(rt.logger.With().Str("component", "policy").Logger()))),
	}
	if rt.tracer != nil {
		opts = append(opts, engine.WithTracer(rt.tracer.Tracer()))
	}
	if rt.journal != nil {
		opts = append(opts, engine.WithRecorder(rt.journal))
	}
	return engine.New(adapterSet, opts...)
}
