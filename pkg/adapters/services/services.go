// Package services adapts the model's services section to systemd units
// via systemctl. The unit set is whatever the scope model names; units the
// model does not mention are never touched.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mpwrd/mpwrd-config/pkg/adapters"
	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// Adapter implements adapters.Adapter for the services domain.
type Adapter struct {
	run    adapters.Runner
	logger zerolog.Logger
}

// Option configures the adapter.
type Option func(*Adapter)

// WithRunner substitutes the command runner.
func WithRunner(r adapters.Runner) Option { return func(a *Adapter) { a.run = r } }

// WithLogger sets the adapter logger.
func WithLogger(l zerolog.Logger) Option { return func(a *Adapter) { a.logger = l } }

// New creates a services adapter bound to the host's systemd.
func New(opts ...Option) *Adapter {
	a := &Adapter{run: adapters.ExecRunner(), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Domain implements adapters.Adapter.
func (a *Adapter) Domain() string { return model.DomainServices }

// Read implements adapters.Adapter. Each unit named by the scope is probed
// with systemctl is-enabled and is-active. systemctl exits non-zero for
// disabled and inactive units, so its exit code carries state rather than
// failure; a unit systemd does not know at all reads as disabled and
// stopped.
func (a *Adapter) Read(ctx context.Context, scope *model.Config) (*model.Config, error) {
	snap := &model.Config{Services: make(map[string]model.Service, len(scope.Services))}
	for _, name := range sortedNames(scope.Services) {
		enabled, _ := a.run.Run(ctx, "systemctl", "is-enabled", name)
		active, _ := a.run.Run(ctx, "systemctl", "is-active", name)
		snap.Services[name] = model.Service{
			Enabled: strings.TrimSpace(enabled) == "enabled",
			Running: strings.TrimSpace(active) == "active",
		}
	}
	return snap, nil
}

// Apply implements adapters.Adapter. Units are applied in sorted name
// order; enablement settles before run state so a freshly enabled unit can
// be started in the same pass. One failing unit never blocks the rest.
func (a *Adapter) Apply(ctx context.Context, desired, current *model.Config) ([]adapters.AppliedChange, []*adapters.ApplyError) {
	var applied []adapters.AppliedChange
	var failures []*adapters.ApplyError

	for _, name := range sortedNames(desired.Services) {
		want := desired.Services[name]
		have := current.Services[name]
		if want == have {
			continue
		}

		if err := a.applyService(ctx, name, want, have); err != nil {
			failures = append(failures, &adapters.ApplyError{Field: model.ServiceField(name), Err: err})
			continue
		}
		applied = append(applied, adapters.AppliedChange{
			Domain: a.Domain(),
			Field:  model.ServiceField(name),
			Before: RenderService(have),
			After:  RenderService(want),
		})
	}
	return applied, failures
}

func (a *Adapter) applyService(ctx context.Context, name string, want, have model.Service) error {
	if want.Enabled != have.Enabled {
		verb := "disable"
		if want.Enabled {
			verb = "enable"
		}
		if _, err := a.run.Run(ctx, "systemctl", verb, name); err != nil {
			return fmt.Errorf("%s %s: %w", verb, name, err)
		}
	}
	if want.Running != have.Running {
		verb := "stop"
		if want.Running {
			verb = "start"
		}
		if _, err := a.run.Run(ctx, "systemctl", verb, name); err != nil {
			return fmt.Errorf("%s %s: %w", verb, name, err)
		}
	}
	return nil
}

// RenderService renders a service state for change reporting.
func RenderService(s model.Service) string {
	return fmt.Sprintf("enabled=%t running=%t", s.Enabled, s.Running)
}

func sortedNames(services map[string]model.Service) []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
