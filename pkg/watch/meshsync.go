package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mpwrd/mpwrd-config/pkg/adapters"
	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// Mesh sync defaults. The Meshtastic radio keeps its own wifi flag; the
// sync loop pushes the store's desired value to the radio so both stay
// aligned.
const (
	DefaultMeshInterval = 5 * time.Minute
	meshWifiSetting     = "network.wifi_enabled"
)

// ConfigSource supplies the current desired model, typically store.Load.
type ConfigSource func() (*model.Config, error)

// MeshSync aligns the Meshtastic radio's wifi flag with the store.
type MeshSync struct {
	load     ConfigSource
	run      adapters.Runner
	interval time.Duration
	logger   zerolog.Logger
}

// MeshOption configures the sync loop.
type MeshOption func(*MeshSync)

// WithMeshRunner substitutes the command runner.
func WithMeshRunner(r adapters.Runner) MeshOption { return func(m *MeshSync) { m.run = r } }

// WithMeshInterval sets the polling interval.
func WithMeshInterval(d time.Duration) MeshOption { return func(m *MeshSync) { m.interval = d } }

// WithMeshLogger sets the logger.
func WithMeshLogger(l zerolog.Logger) MeshOption { return func(m *MeshSync) { m.logger = l } }

// NewMeshSync creates a sync loop reading desired state from load.
func NewMeshSync(load ConfigSource, opts ...MeshOption) *MeshSync {
	m := &MeshSync{
		load:     load,
		run:      adapters.ExecRunner(),
		interval: DefaultMeshInterval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SyncOnce reads the radio's wifi flag and pushes the desired value when
// they differ. Returns whether a set was issued.
func (m *MeshSync) SyncOnce(ctx context.Context) (bool, error) {
	cfg, err := m.load()
	if err != nil {
		return false, fmt.Errorf("load desired state: %w", err)
	}
	desired := cfg.Networking.WifiEnabled

	out, err := m.run.Run(ctx, "meshtastic", "--get", meshWifiSetting)
	if err != nil {
		return false, fmt.Errorf("query radio wifi flag: %w", err)
	}
	radio, ok := parseMeshBool(out)
	if !ok {
		return false, fmt.Errorf("unexpected radio response: %q", out)
	}
	if radio == desired {
		return false, nil
	}

	value := "false"
	if desired {
		value = "true"
	}
	if _, err := m.run.Run(ctx, "meshtastic", "--set", meshWifiSetting, value); err != nil {
		return false, fmt.Errorf("set radio wifi flag: %w", err)
	}
	m.logger.Info().Bool("wifi_enabled", desired).Msg("radio wifi flag updated")
	return true, nil
}

// Run polls until ctx is done.
func (m *MeshSync) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if _, err := m.SyncOnce(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("mesh sync failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// parseMeshBool finds the wifi flag in the CLI output. The Meshtastic CLI
// prints lines like "network.wifi_enabled: True".
func parseMeshBool(out string) (bool, bool) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, meshWifiSetting) {
			continue
		}
		_, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}
