package model

import "fmt"

// Adapter domains, in the fixed apply order: a hostname change must be
// visible before a dependent service restarts, and services settle before
// hardware peripherals.
const (
	DomainNetworking = "networking"
	DomainServices   = "services"
	DomainHardware   = "hardware"
)

// Domains lists the adapter domains in apply order.
func Domains() []string {
	return []string{DomainNetworking, DomainServices, DomainHardware}
}

// Field paths of the networking section, in schema declaration order.
// Declaration order is also diff and apply order within the domain.
const (
	FieldHostname     = "networking.hostname"
	FieldWifiEnabled  = "networking.wifi_enabled"
	FieldCountryCode  = "networking.country_code"
	FieldWifiNetworks = "networking.wifi"
)

// ServiceField returns the field path of one managed service.
func ServiceField(name string) string {
	return fmt.Sprintf("services.%s", name)
}

// LEDField returns the field path of one LED peripheral.
func LEDField(name string) string {
	return fmt.Sprintf("hardware.led.%s", name)
}

// BusField returns the field path of one bus peripheral.
func BusField(name string) string {
	return fmt.Sprintf("hardware.bus.%s", name)
}
