package telemetry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsPath is the canonical settings file location.
const DefaultSettingsPath = "/etc/mpwrd-config.d/telemetry.yaml"

// Settings configures the telemetry stack.
type Settings struct {
	// Logging configures structured logging.
	Logging LoggingSettings `yaml:"logging"`

	// Tracing configures trace export.
	Tracing TracingSettings `yaml:"tracing"`

	// Metrics configures the Prometheus surface.
	Metrics MetricsSettings `yaml:"metrics"`
}

// LoggingSettings configures zerolog output.
type LoggingSettings struct {
	// Level is the minimum level (trace, debug, info, warn, error).
	Level string `yaml:"level"`

	// Format is "console" or "json".
	Format string `yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `yaml:"output"`
}

// TracingSettings configures trace export.
type TracingSettings struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled"`

	// Exporter is "stdout", "otlp", or "none".
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC endpoint.
	Endpoint string `yaml:"endpoint"`

	// ExportTimeout bounds one export batch.
	ExportTimeout time.Duration `yaml:"export_timeout"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	// Enabled turns the metrics listener on.
	Enabled bool `yaml:"enabled"`

	// Listen is the host:port of the metrics endpoint.
	Listen string `yaml:"listen"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		Logging: LoggingSettings{Level: "info", Format: "console", Output: "stderr"},
		Tracing: TracingSettings{Enabled: false, Exporter: "none", ExportTimeout: 10 * time.Second},
		Metrics: MetricsSettings{Enabled: false, Listen: "127.0.0.1:9470"},
	}
}

// LoadSettings reads the settings file, falling back to defaults when the
// file is absent. Unset fields keep their defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		path = DefaultSettingsPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("read telemetry settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return settings, fmt.Errorf("parse telemetry settings %s: %w", path, err)
	}
	return settings, settings.Validate()
}

// Validate checks enum-valued fields.
func (s Settings) Validate() error {
	switch s.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log format %q", s.Logging.Format)
	}
	switch s.Tracing.Exporter {
	case "", "stdout", "otlp", "none":
	default:
		return fmt.Errorf("invalid trace exporter %q", s.Tracing.Exporter)
	}
	return nil
}
