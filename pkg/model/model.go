// Package model defines the canonical in-memory representation of all
// configurable device state: networking, managed services, and hardware
// peripherals. The model is pure data; its only behavior is validation.
// A model instance is built once (by the store on load, or by a caller
// assembling desired state) and consumed exactly once by a reconciliation
// run. Mutations always go through Clone, never in place.
package model

// Config is the root aggregate. It owns every sub-section exclusively; no
// other component holds configuration state outside of a Config.
type Config struct {
	// Networking holds hostname and Wi-Fi configuration.
	Networking Networking `toml:"networking" json:"networking"`

	// Services maps a systemd unit name to its desired enable/run state.
	// Keys are unique; insertion order carries no meaning.
	Services map[string]Service `toml:"services" json:"services,omitempty" validate:"dive,keys,required,unit_name,endkeys"`

	// Hardware holds per-peripheral settings, keyed by peripheral name
	// within a fixed set of peripheral families.
	Hardware Hardware `toml:"hardware" json:"hardware"`
}

// Networking configures the device's network identity and Wi-Fi.
type Networking struct {
	// Hostname is the device hostname, a single DNS label.
	Hostname string `toml:"hostname" json:"hostname" validate:"required,dns_label"`

	// WifiEnabled controls whether the wireless interface is brought up.
	WifiEnabled bool `toml:"wifi_enabled" json:"wifi_enabled"`

	// CountryCode is the ISO 3166-1 alpha-2 regulatory domain.
	CountryCode string `toml:"country_code" json:"country_code" validate:"required,iso3166_1_alpha2"`

	// WifiInterface optionally pins the wireless interface to use. When
	// empty the adapter auto-selects the single physical wireless
	// interface. This is a selection input, not system state: it is never
	// diffed or applied on its own.
	WifiInterface string `toml:"wifi_interface,omitempty" json:"wifi_interface,omitempty" validate:"omitempty,max=15"`

	// Wifi is the ordered list of known networks. SSIDs are unique
	// within the list.
	Wifi []WifiNetwork `toml:"wifi,omitempty" json:"wifi,omitempty" validate:"unique=SSID,dive"`
}

// WifiNetwork is one known wireless network.
type WifiNetwork struct {
	// SSID is the network name. Required, at most 32 octets.
	SSID string `toml:"ssid" json:"ssid" validate:"required,max=32"`

	// PSK is either a plaintext passphrase (8-63 characters) or an
	// already-derived 64-hex-digit key. Empty means an open network.
	PSK string `toml:"psk" json:"psk" validate:"omitempty,min=8,max=64"`
}

// Service is the desired state of one systemd unit.
type Service struct {
	// Enabled controls whether the unit starts at boot.
	Enabled bool `toml:"enabled" json:"enabled"`

	// Running controls whether the unit is active right now.
	Running bool `toml:"running" json:"running"`
}

// Hardware groups the peripheral families. The set of families is closed
// and hardware-enumerable; dispatch over it is static, not dynamic.
type Hardware struct {
	// LEDs maps an LED name (a /sys/class/leds entry) to its mode.
	LEDs map[string]LED `toml:"led,omitempty" json:"led,omitempty" validate:"dive"`

	// Buses maps a bus peripheral name (its kernel module) to its config.
	Buses map[string]Bus `toml:"bus,omitempty" json:"bus,omitempty" validate:"dive"`
}

// LEDMode selects the kernel trigger driving an LED.
type LEDMode string

const (
	// LEDModeEnable keeps the LED lit (default-on trigger).
	LEDModeEnable LEDMode = "enable"

	// LEDModeDisable turns the LED off (none trigger).
	LEDModeDisable LEDMode = "disable"

	// LEDModeHeartbeat blinks the LED with the heartbeat trigger.
	LEDModeHeartbeat LEDMode = "heartbeat"
)

// LED is the desired state of one status LED.
type LED struct {
	// Mode is the LED mode: enable, disable, or heartbeat.
	Mode LEDMode `toml:"mode" json:"mode" validate:"required,oneof=enable disable heartbeat"`
}

// Bus is the desired state of one bus peripheral (SPI, I2C, UART). A bus is
// enabled when its kernel module is loaded and listed for boot.
type Bus struct {
	// Enabled controls whether the bus module is loaded.
	Enabled bool `toml:"enabled" json:"enabled"`

	// Speed optionally overrides the bus clock, in hertz.
	Speed *int64 `toml:"speed,omitempty" json:"speed,omitempty" validate:"omitempty,gt=0"`
}

// Default returns a model with every field at its defined default, so an
// absent field is never ambiguous: decoding a partial document on top of
// Default() yields a complete model.
func Default() *Config {
	return &Config{
		Networking: Networking{
			Hostname:    "mpwrd",
			WifiEnabled: false,
			CountryCode: "US",
		},
		Services: map[string]Service{},
		Hardware: Hardware{
			LEDs:  map[string]LED{},
			Buses: map[string]Bus{},
		},
	}
}

// Clone returns a deep copy. Reconciliation runs operate on clones so a
// model handed to the engine is never visible to concurrent readers.
func (c *Config) Clone() *Config {
	out := &Config{
		Networking: c.Networking,
		Services:   make(map[string]Service, len(c.Services)),
		Hardware: Hardware{
			LEDs:  make(map[string]LED, len(c.Hardware.LEDs)),
			Buses: make(map[string]Bus, len(c.Hardware.Buses)),
		},
	}
	out.Networking.Wifi = make([]WifiNetwork, len(c.Networking.Wifi))
	copy(out.Networking.Wifi, c.Networking.Wifi)
	for name, svc := range c.Services {
		out.Services[name] = svc
	}
	for name, led := range c.Hardware.LEDs {
		out.Hardware.LEDs[name] = led
	}
	for name, bus := range c.Hardware.Buses {
		if bus.Speed != nil {
			speed := *bus.Speed
			bus.Speed = &speed
		}
		out.Hardware.Buses[name] = bus
	}
	return out
}

// Validate checks the led mode against the closed mode set.
func (m LEDMode) Validate() bool {
	switch m {
	case LEDModeEnable, LEDModeDisable, LEDModeHeartbeat:
		return true
	default:
		return false
	}
}
