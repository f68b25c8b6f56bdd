package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mpwrd/mpwrd-config/pkg/adapters"
	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// DefaultAdapterTimeout bounds every adapter Read and Apply call.
const DefaultAdapterTimeout = 10 * time.Second

// Result is the full record of one reconciliation run.
type Result struct {
	// RunID uniquely identifies the run.
	RunID uuid.UUID `json:"run_id"`

	// State is the run's final (or, mid-run, current) state.
	State RunState `json:"state"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`

	// Planned is the change set computed by the diff.
	Planned []Change `json:"planned,omitempty"`

	// Applied are the mutations that were performed.
	Applied []adapters.AppliedChange `json:"applied,omitempty"`

	// Failures are the per-field apply failures.
	Failures []*adapters.ApplyError `json:"failures,omitempty"`

	// ReadFailures are the domains whose state could not be inspected;
	// those domains were diffed against defaults.
	ReadFailures []*adapters.ReadError `json:"read_failures,omitempty"`

	// PolicyWarnings are advisory policy findings for the change set.
	PolicyWarnings []GateViolation `json:"policy_warnings,omitempty"`
}

// ApplyOptions tune one Reconcile call.
type ApplyOptions struct {
	// DryRun stops after the diff; nothing is mutated.
	DryRun bool

	// Force applies the change set even when policy blocks it.
	Force bool
}

// PolicyBlockedError aborts a run whose change set policy rejected.
type PolicyBlockedError struct {
	// Violations are the blocking findings.
	Violations []GateViolation
}

// Error implements the error interface.
func (e *PolicyBlockedError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Policy, v.Message)
	}
	return fmt.Sprintf("change set blocked by policy: %s", strings.Join(msgs, "; "))
}

// Reconciler drives reconciliation runs over a fixed, ordered adapter set.
type Reconciler struct {
	adapters []adapters.Adapter
	timeout  time.Duration
	gate     PolicyGate
	recorder Recorder
	metrics  MetricsSink
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// Option configures the reconciler.
type Option func(*Reconciler)

// WithTimeout sets the per-adapter call timeout.
func WithTimeout(d time.Duration) Option { return func(r *Reconciler) { r.timeout = d } }

// WithPolicyGate installs a policy gate over planned change sets.
func WithPolicyGate(g PolicyGate) Option { return func(r *Reconciler) { r.gate = g } }

// WithRecorder installs a run history recorder.
func WithRecorder(rec Recorder) Option { return func(r *Reconciler) { r.recorder = rec } }

// WithMetrics installs a metrics sink.
func WithMetrics(m MetricsSink) Option { return func(r *Reconciler) { r.metrics = m } }

// WithTracer sets the tracer for run spans.
func WithTracer(t trace.Tracer) Option { return func(r *Reconciler) { r.tracer = t } }

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Reconciler) { r.logger = l } }

// New creates a reconciler over the given adapters. The slice order is the
// apply order and must match model.Domains().
func New(adapterSet []adapters.Adapter, opts ...Option) *Reconciler {
	r := &Reconciler{
		adapters: adapterSet,
		timeout:  DefaultAdapterTimeout,
		tracer:   noop.NewTracerProvider().Tracer("engine"),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile runs one full reconciliation of desired against the system.
// The desired model is validated, cloned and then owned by the run. The
// returned Result is non-nil whenever the run got past validation, even
// when an error is returned alongside it.
func (r *Reconciler) Reconcile(ctx context.Context, desired *model.Config, opts ApplyOptions) (*Result, error) {
	if err := desired.Validate(); err != nil {
		return nil, err
	}
	desired = desired.Clone()

	ctx, span := r.tracer.Start(ctx, "reconcile")
	defer span.End()

	res := &Result{
		RunID:     uuid.New(),
		State:     RunStateLoaded,
		StartedAt: time.Now(),
	}
	span.SetAttributes(attribute.String("run.id", res.RunID.String()))
	log := r.logger.With().Str("run_id", res.RunID.String()).Logger()

	current, readFailures := r.readAll(ctx, desired)
	res.ReadFailures = readFailures
	for _, rf := range readFailures {
		log.Warn().Err(rf).Str("domain", rf.Domain).Msg("state read failed, diffing against defaults")
	}

	res.Planned = Diff(desired, current)
	res.State = RunStateDiffed
	span.SetAttributes(attribute.Int("run.planned", len(res.Planned)))

	if len(res.Planned) == 0 {
		res.State = RunStateConverged
		r.finish(ctx, res, log)
		return res, nil
	}

	if r.gate != nil {
		gr, err := r.gate.EvaluateChanges(ctx, res.Planned)
		if err != nil {
			return res, fmt.Errorf("policy evaluation: %w", err)
		}
		res.PolicyWarnings = gr.Warnings
		for _, w := range gr.Warnings {
			log.Warn().Str("policy", w.Policy).Msg(w.Message)
		}
		if !gr.Allowed {
			if !opts.Force {
				return res, &PolicyBlockedError{Violations: gr.Violations}
			}
			for _, v := range gr.Violations {
				log.Warn().Str("policy", v.Policy).Msgf("forced past blocking policy: %s", v.Message)
			}
		}
	}

	if opts.DryRun {
		res.Duration = time.Since(res.StartedAt)
		return res, nil
	}

	res.State = RunStateApplying
	changed := changedDomains(res.Planned)
	for _, adapter := range r.adapters {
		if !changed[adapter.Domain()] {
			continue
		}
		actx, cancel := context.WithTimeout(ctx, r.timeout)
		applied, failures := adapter.Apply(actx, desired, current)
		cancel()
		res.Applied = append(res.Applied, applied...)
		res.Failures = append(res.Failures, failures...)
		for _, f := range failures {
			log.Error().Err(f).Str("field", f.Field).Msg("apply failed")
		}
	}

	if len(res.Failures) == 0 {
		res.State = RunStateConverged
	} else {
		res.State = RunStatePartiallyFailed
	}
	r.finish(ctx, res, log)
	return res, nil
}

// CurrentState reads a snapshot of live system state through every
// adapter. scope supplies the key sets to probe; read failures leave that
// domain at defaults and are returned alongside the snapshot.
func (r *Reconciler) CurrentState(ctx context.Context, scope *model.Config) (*model.Config, []*adapters.ReadError) {
	return r.readAll(ctx, scope)
}

// readAll collects the current model from every adapter. A domain whose
// read fails stays at its defaults, seeded with the scope's key sets so
// the diff still covers it.
func (r *Reconciler) readAll(ctx context.Context, scope *model.Config) (*model.Config, []*adapters.ReadError) {
	current := defaultsForScope(scope)
	var failures []*adapters.ReadError

	for _, adapter := range r.adapters {
		actx, cancel := context.WithTimeout(ctx, r.timeout)
		snap, err := adapter.Read(actx, scope)
		cancel()
		if err != nil {
			if re, ok := err.(*adapters.ReadError); ok {
				failures = append(failures, re)
			} else {
				failures = append(failures, &adapters.ReadError{Domain: adapter.Domain(), Err: err})
			}
			continue
		}
		mergeDomain(current, snap, adapter.Domain())
	}
	return current, failures
}

// defaultsForScope builds the fallback current model: every scoped key
// present at its defined default.
func defaultsForScope(scope *model.Config) *model.Config {
	current := model.Default()
	current.Networking.WifiInterface = scope.Networking.WifiInterface
	for name := range scope.Services {
		current.Services[name] = model.Service{}
	}
	for name := range scope.Hardware.LEDs {
		current.Hardware.LEDs[name] = model.LED{Mode: model.LEDModeDisable}
	}
	for name := range scope.Hardware.Buses {
		current.Hardware.Buses[name] = model.Bus{}
	}
	return current
}

func mergeDomain(dst, snap *model.Config, domain string) {
	switch domain {
	case model.DomainNetworking:
		dst.Networking = snap.Networking
	case model.DomainServices:
		if snap.Services != nil {
			dst.Services = snap.Services
		}
	case model.DomainHardware:
		if snap.Hardware.LEDs != nil {
			dst.Hardware.LEDs = snap.Hardware.LEDs
		}
		if snap.Hardware.Buses != nil {
			dst.Hardware.Buses = snap.Hardware.Buses
		}
	}
}

func changedDomains(changes []Change) map[string]bool {
	out := map[string]bool{}
	for _, c := range changes {
		out[c.Domain] = true
	}
	return out
}

// finish stamps the duration and hands the result to the metrics sink and
// the recorder. Both are best effort.
func (r *Reconciler) finish(ctx context.Context, res *Result, log zerolog.Logger) {
	res.Duration = time.Since(res.StartedAt)
	if r.metrics != nil {
		r.metrics.ObserveRun(res)
	}
	if r.recorder != nil {
		if err := r.recorder.RecordRun(ctx, res); err != nil {
			log.Warn().Err(err).Msg("run history not recorded")
		}
	}
	log.Info().
		Str("state", string(res.State)).
		Int("planned", len(res.Planned)).
		Int("applied", len(res.Applied)).
		Int("failed", len(res.Failures)).
		Dur("duration", res.Duration).
		Msg("reconciliation finished")
}
