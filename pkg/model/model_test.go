package model

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	speed := int64(1000000)
	cfg := Default()
	cfg.Networking.Hostname = "node-1"
	cfg.Networking.WifiEnabled = true
	cfg.Networking.CountryCode = "CA"
	cfg.Networking.Wifi = []WifiNetwork{
		{SSID: "mesh", PSK: "correct horse"},
		{SSID: "backup", PSK: "battery staple"},
	}
	cfg.Services["meshtasticd"] = Service{Enabled: true, Running: true}
	cfg.Hardware.LEDs["status"] = LED{Mode: LEDModeHeartbeat}
	cfg.Hardware.Buses["spidev"] = Bus{Enabled: true, Speed: &speed}
	return cfg
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default model should validate, got: %v", err)
	}
}

func TestValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid, got: %v", err)
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Networking.Hostname = "bad hostname"
	cfg.Networking.CountryCode = "USA"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(ve.Violations), ve.Violations)
	}

	fields := map[string]bool{}
	for _, v := range ve.Violations {
		fields[v.Field] = true
	}
	if !fields["networking.hostname"] || !fields["networking.country_code"] {
		t.Errorf("violations should name both fields, got: %v", ve.Violations)
	}
}

func TestValidateRejectsDuplicateSSIDs(t *testing.T) {
	cfg := validConfig()
	cfg.Networking.Wifi = []WifiNetwork{
		{SSID: "mesh", PSK: "passphrase1"},
		{SSID: "mesh", PSK: "passphrase2"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for duplicate SSIDs")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicates: %v", err)
	}
}

func TestValidateRejectsBadLEDMode(t *testing.T) {
	cfg := validConfig()
	cfg.Hardware.LEDs["status"] = LED{Mode: "blink"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown led mode")
	}
}

func TestValidateRejectsNonPositiveBusSpeed(t *testing.T) {
	cfg := validConfig()
	zero := int64(0)
	cfg.Hardware.Buses["spidev"] = Bus{Enabled: true, Speed: &zero}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero bus speed")
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := validConfig()
	clone := cfg.Clone()

	clone.Networking.Hostname = "other"
	clone.Networking.Wifi[0].PSK = "changed"
	clone.Services["meshtasticd"] = Service{Enabled: false, Running: false}
	*clone.Hardware.Buses["spidev"].Speed = 42

	if cfg.Networking.Hostname != "node-1" {
		t.Error("clone mutation leaked into hostname")
	}
	if cfg.Networking.Wifi[0].PSK != "correct horse" {
		t.Error("clone mutation leaked into wifi list")
	}
	if !cfg.Services["meshtasticd"].Enabled {
		t.Error("clone mutation leaked into services map")
	}
	if *cfg.Hardware.Buses["spidev"].Speed != 1000000 {
		t.Error("clone mutation leaked into bus speed")
	}
}

func TestLEDModeValidate(t *testing.T) {
	for _, mode := range []LEDMode{LEDModeEnable, LEDModeDisable, LEDModeHeartbeat} {
		if !mode.Validate() {
			t.Errorf("mode %q should be valid", mode)
		}
	}
	if LEDMode("blink").Validate() {
		t.Error("unknown mode should be invalid")
	}
}
