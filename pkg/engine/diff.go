package engine

import (
	"sort"
	"strconv"

	"github.com/mpwrd/mpwrd-config/pkg/adapters/hardware"
	"github.com/mpwrd/mpwrd-config/pkg/adapters/networking"
	"github.com/mpwrd/mpwrd-config/pkg/adapters/services"
	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// Change is one planned field-level mutation, rendered for reporting.
// Credentials never appear in a Change.
type Change struct {
	// Domain is the adapter domain the field belongs to.
	Domain string `json:"domain"`

	// Field is the dotted model path.
	Field string `json:"field"`

	// Before is the rendered current value.
	Before string `json:"before"`

	// After is the rendered desired value.
	After string `json:"after"`
}

// Diff computes the planned change set between desired and current. Fields
// are visited in schema declaration order, domain by domain in apply order;
// map-keyed fields are visited in sorted key order. Equal fields produce
// nothing. Wifi credentials compare on their derived form, so a plaintext
// passphrase and its stored key never diff against each other.
func Diff(desired, current *model.Config) []Change {
	var changes []Change

	if desired.Networking.Hostname != current.Networking.Hostname {
		changes = append(changes, Change{
			Domain: model.DomainNetworking,
			Field:  model.FieldHostname,
			Before: current.Networking.Hostname,
			After:  desired.Networking.Hostname,
		})
	}
	if desired.Networking.WifiEnabled != current.Networking.WifiEnabled {
		changes = append(changes, Change{
			Domain: model.DomainNetworking,
			Field:  model.FieldWifiEnabled,
			Before: strconv.FormatBool(current.Networking.WifiEnabled),
			After:  strconv.FormatBool(desired.Networking.WifiEnabled),
		})
	}
	if desired.Networking.CountryCode != current.Networking.CountryCode {
		changes = append(changes, Change{
			Domain: model.DomainNetworking,
			Field:  model.FieldCountryCode,
			Before: current.Networking.CountryCode,
			After:  desired.Networking.CountryCode,
		})
	}
	if !networking.WifiNetworksEqual(desired.Networking.Wifi, current.Networking.Wifi) {
		changes = append(changes, Change{
			Domain: model.DomainNetworking,
			Field:  model.FieldWifiNetworks,
			Before: networking.RenderNetworks(current.Networking.Wifi),
			After:  networking.RenderNetworks(desired.Networking.Wifi),
		})
	}

	for _, name := range sortedKeys(desired.Services) {
		want := desired.Services[name]
		have := current.Services[name]
		if want == have {
			continue
		}
		changes = append(changes, Change{
			Domain: model.DomainServices,
			Field:  model.ServiceField(name),
			Before: services.RenderService(have),
			After:  services.RenderService(want),
		})
	}

	for _, name := range sortedKeys(desired.Hardware.LEDs) {
		want := desired.Hardware.LEDs[name]
		have := ledOrDefault(current.Hardware.LEDs, name)
		if want.Mode == have.Mode {
			continue
		}
		changes = append(changes, Change{
			Domain: model.DomainHardware,
			Field:  model.LEDField(name),
			Before: string(have.Mode),
			After:  string(want.Mode),
		})
	}
	for _, name := range sortedKeys(desired.Hardware.Buses) {
		want := desired.Hardware.Buses[name]
		have := current.Hardware.Buses[name]
		if hardware.BusEqual(want, have) {
			continue
		}
		changes = append(changes, Change{
			Domain: model.DomainHardware,
			Field:  model.BusField(name),
			Before: hardware.RenderBus(have),
			After:  hardware.RenderBus(want),
		})
	}

	return changes
}

func ledOrDefault(leds map[string]model.LED, name string) model.LED {
	if led, ok := leds[name]; ok && led.Mode != "" {
		return led
	}
	return model.LED{Mode: model.LEDModeDisable}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
