// Package hardware adapts the model's hardware section to peripherals:
// LED triggers through the sysfs leds class and bus controllers through
// kernel modules, /etc/modules persistence and modprobe.d options.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mpwrd/mpwrd-config/pkg/adapters"
	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// Adapter implements adapters.Adapter for the hardware domain.
type Adapter struct {
	run      adapters.Runner
	etcRoot  string
	sysRoot  string
	procRoot string
	logger   zerolog.Logger
}

// Option configures the adapter.
type Option func(*Adapter)

// WithRunner substitutes the command runner.
func WithRunner(r adapters.Runner) Option { return func(a *Adapter) { a.run = r } }

// WithEtcRoot relocates the /etc tree, for tests.
func WithEtcRoot(dir string) Option { return func(a *Adapter) { a.etcRoot = dir } }

// WithSysRoot relocates the /sys tree, for tests.
func WithSysRoot(dir string) Option { return func(a *Adapter) { a.sysRoot = dir } }

// WithProcRoot relocates the /proc tree, for tests.
func WithProcRoot(dir string) Option { return func(a *Adapter) { a.procRoot = dir } }

// WithLogger sets the adapter logger.
func WithLogger(l zerolog.Logger) Option { return func(a *Adapter) { a.logger = l } }

// New creates a hardware adapter bound to the host system.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		run:      adapters.ExecRunner(),
		etcRoot:  "/etc",
		sysRoot:  "/sys",
		procRoot: "/proc",
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Domain implements adapters.Adapter.
func (a *Adapter) Domain() string { return model.DomainHardware }

func (a *Adapter) triggerPath(led string) string {
	return filepath.Join(a.sysRoot, "class", "leds", led, "trigger")
}

func (a *Adapter) modulesPath() string { return filepath.Join(a.etcRoot, "modules") }

func (a *Adapter) loadedModulesPath() string { return filepath.Join(a.procRoot, "modules") }

func (a *Adapter) optionsPath(bus string) string {
	return filepath.Join(a.etcRoot, "modprobe.d", "mpwrd-"+bus+".conf")
}

// LED mode to sysfs trigger mapping.
var triggerForMode = map[model.LEDMode]string{
	model.LEDModeEnable:    "default-on",
	model.LEDModeDisable:   "none",
	model.LEDModeHeartbeat: "heartbeat",
}

func modeForTrigger(trigger string) model.LEDMode {
	switch trigger {
	case "heartbeat":
		return model.LEDModeHeartbeat
	case "default-on":
		return model.LEDModeEnable
	default:
		return model.LEDModeDisable
	}
}

// Read implements adapters.Adapter. The scope names which LEDs and buses to
// probe; peripherals absent from the system read as their defaults.
func (a *Adapter) Read(ctx context.Context, scope *model.Config) (*model.Config, error) {
	snap := &model.Config{Hardware: model.Hardware{
		LEDs:  make(map[string]model.LED, len(scope.Hardware.LEDs)),
		Buses: make(map[string]model.Bus, len(scope.Hardware.Buses)),
	}}

	for name := range scope.Hardware.LEDs {
		mode, err := a.readLED(name)
		if err != nil {
			return nil, &adapters.ReadError{Domain: a.Domain(), Err: err}
		}
		snap.Hardware.LEDs[name] = model.LED{Mode: mode}
	}

	loaded, err := a.loadedModules()
	if err != nil {
		return nil, &adapters.ReadError{Domain: a.Domain(), Err: err}
	}
	for name := range scope.Hardware.Buses {
		bus := model.Bus{Enabled: loaded[moduleName(name)]}
		speed, err := a.readSpeed(name)
		if err != nil {
			return nil, &adapters.ReadError{Domain: a.Domain(), Err: err}
		}
		bus.Speed = speed
		snap.Hardware.Buses[name] = bus
	}

	return snap, nil
}

func (a *Adapter) readLED(name string) (model.LEDMode, error) {
	raw, err := os.ReadFile(a.triggerPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.LEDModeDisable, nil
		}
		return "", err
	}
	// The trigger file lists all triggers with the active one bracketed.
	for _, field := range strings.Fields(string(raw)) {
		if strings.HasPrefix(field, "[") && strings.HasSuffix(field, "]") {
			return modeForTrigger(field[1 : len(field)-1]), nil
		}
	}
	return model.LEDModeDisable, nil
}

// loadedModules reads the loaded module set from /proc/modules.
func (a *Adapter) loadedModules() (map[string]bool, error) {
	raw, err := os.ReadFile(a.loadedModulesPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	loaded := map[string]bool{}
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			loaded[fields[0]] = true
		}
	}
	return loaded, nil
}

func (a *Adapter) readSpeed(bus string) (*int64, error) {
	raw, err := os.ReadFile(a.optionsPath(bus))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "options" {
			continue
		}
		for _, opt := range fields[2:] {
			if val, ok := strings.CutPrefix(opt, "speed="); ok {
				speed, err := strconv.ParseInt(val, 10, 64)
				if err != nil {
					continue
				}
				return &speed, nil
			}
		}
	}
	return nil, nil
}

// Apply implements adapters.Adapter. LEDs settle before buses; within each
// kind the names are applied in sorted order.
func (a *Adapter) Apply(ctx context.Context, desired, current *model.Config) ([]adapters.AppliedChange, []*adapters.ApplyError) {
	var applied []adapters.AppliedChange
	var failures []*adapters.ApplyError

	for _, name := range sortedKeys(desired.Hardware.LEDs) {
		want := desired.Hardware.LEDs[name]
		have := current.Hardware.LEDs[name]
		if want.Mode == have.Mode {
			continue
		}
		if err := a.applyLED(name, want.Mode); err != nil {
			failures = append(failures, &adapters.ApplyError{Field: model.LEDField(name), Err: err})
			continue
		}
		applied = append(applied, adapters.AppliedChange{
			Domain: a.Domain(),
			Field:  model.LEDField(name),
			Before: string(have.Mode),
			After:  string(want.Mode),
		})
	}

	for _, name := range sortedKeys(desired.Hardware.Buses) {
		want := desired.Hardware.Buses[name]
		have := current.Hardware.Buses[name]
		if BusEqual(want, have) {
			continue
		}
		if err := a.applyBus(ctx, name, want, have); err != nil {
			failures = append(failures, &adapters.ApplyError{Field: model.BusField(name), Err: err})
			continue
		}
		applied = append(applied, adapters.AppliedChange{
			Domain: a.Domain(),
			Field:  model.BusField(name),
			Before: RenderBus(have),
			After:  RenderBus(want),
		})
	}

	return applied, failures
}

func (a *Adapter) applyLED(name string, mode model.LEDMode) error {
	trigger, ok := triggerForMode[mode]
	if !ok {
		return fmt.Errorf("unknown led mode %q", mode)
	}
	path := a.triggerPath(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("led %s: %w", name, err)
	}
	return os.WriteFile(path, []byte(trigger), 0o644)
}

func (a *Adapter) applyBus(ctx context.Context, name string, want, have model.Bus) error {
	mod := moduleName(name)

	if !speedEqual(want.Speed, have.Speed) {
		if want.Speed != nil {
			if err := a.writeSpeed(name, *want.Speed); err != nil {
				return fmt.Errorf("module options for %s: %w", name, err)
			}
		} else if err := os.Remove(a.optionsPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("module options for %s: %w", name, err)
		}
		// A loaded module keeps its old parameter until reloaded.
		if have.Enabled && want.Enabled {
			if _, err := a.run.Run(ctx, "rmmod", mod); err != nil {
				return err
			}
			have.Enabled = false
		}
	}

	if want.Enabled != have.Enabled {
		if want.Enabled {
			if _, err := a.run.Run(ctx, "modprobe", mod); err != nil {
				return err
			}
		} else {
			if _, err := a.run.Run(ctx, "rmmod", mod); err != nil {
				return err
			}
		}
	}

	return a.persistModule(mod, want.Enabled)
}

func (a *Adapter) writeSpeed(bus string, speed int64) error {
	if err := os.MkdirAll(filepath.Dir(a.optionsPath(bus)), 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf("options %s speed=%d\n", moduleName(bus), speed)
	return os.WriteFile(a.optionsPath(bus), []byte(content), 0o644)
}

// persistModule keeps /etc/modules in sync so the bus state survives a
// reboot. Lines the model does not own are preserved verbatim.
func (a *Adapter) persistModule(mod string, enabled bool) error {
	var lines []string
	raw, err := os.ReadFile(a.modulesPath())
	if err == nil {
		lines = strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	var out []string
	present := false
	for _, line := range lines {
		if strings.TrimSpace(line) == mod {
			present = true
			if !enabled {
				continue
			}
		}
		if line != "" || len(out) > 0 {
			out = append(out, line)
		}
	}
	if enabled && !present {
		out = append(out, mod)
	}

	content := strings.Join(out, "\n")
	if content != "" {
		content += "\n"
	}
	return os.WriteFile(a.modulesPath(), []byte(content), 0o644)
}

// moduleName maps a bus name to its kernel module name.
func moduleName(bus string) string {
	return strings.ReplaceAll(bus, "-", "_")
}

// BusEqual reports whether two bus states are identical, treating a nil
// speed as the module default.
func BusEqual(a, b model.Bus) bool {
	return a.Enabled == b.Enabled && speedEqual(a.Speed, b.Speed)
}

func speedEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// RenderBus renders a bus state for change reporting.
func RenderBus(b model.Bus) string {
	if b.Speed == nil {
		return fmt.Sprintf("enabled=%t speed=default", b.Enabled)
	}
	return fmt.Sprintf("enabled=%t speed=%d", b.Enabled, *b.Speed)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
