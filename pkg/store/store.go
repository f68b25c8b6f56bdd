package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	toml "github.com/pelletier/go-toml"
	"github.com/rs/zerolog"

	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// DefaultPath is the canonical store file location.
const DefaultPath = "/etc/mpwrd-config.toml"

const tempPattern = ".mpwrd-config-*.tmp"

// Store reads and writes one configuration file.
type Store struct {
	path   string
	logger zerolog.Logger
}

// Option configures the store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.logger = l } }

// New creates a store bound to path. An empty path means DefaultPath.
func New(path string, opts ...Option) *Store {
	if path == "" {
		path = DefaultPath
	}
	s := &Store{path: path, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the store file location.
func (s *Store) Path() string { return s.path }

// Load reads and decodes the store file. A missing file is a
// *NotFoundError; a malformed or wrong-typed document is a *ParseError.
// Absent keys decode to their model defaults.
func (s *Store) Load() (*model.Config, error) {
	tree, err := toml.LoadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: s.path}
		}
		return nil, parseError(s.path, err)
	}

	if err := vetDocument(tree.ToMap()); err != nil {
		return nil, &ParseError{Path: s.path, Message: err.Error()}
	}

	cfg := model.Default()
	if err := tree.Unmarshal(cfg); err != nil {
		return nil, parseError(s.path, err)
	}
	ensureMaps(cfg)
	return cfg, nil
}

// Save validates and persists the model. An invalid model never touches
// disk. The write is a temp-file-and-rename in the store directory, under
// an exclusive file lock, so a crash mid-write leaves the previous file
// intact and concurrent writers serialize. Foreign keys and comments of
// the existing file are carried over; a malformed existing file aborts the
// save rather than being clobbered.
func (s *Store) Save(cfg *model.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	release, err := acquireLock(s.path)
	if err != nil {
		return err
	}
	defer release()

	tree, err := s.loadOrEmptyTree()
	if err != nil {
		return err
	}
	if err := overlayModel(tree, cfg); err != nil {
		return err
	}
	content, err := tree.ToTomlString()
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	if err := writeFileAtomic(s.path, []byte(content), 0o644); err != nil {
		return err
	}
	s.logger.Debug().Str("path", s.path).Msg("config saved")
	return nil
}

func (s *Store) loadOrEmptyTree() (*toml.Tree, error) {
	tree, err := toml.LoadFile(s.path)
	if err == nil {
		return tree, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return toml.TreeFromMap(map[string]interface{}{})
	}
	return nil, parseError(s.path, err)
}

// overlayModel writes the model's owned leaves into the document tree.
// Networking is merged leaf by leaf so foreign keys inside [networking]
// stay put; the services and hardware sections are fully model-owned and
// replaced wholesale.
func overlayModel(tree *toml.Tree, cfg *model.Config) error {
	tree.SetPath([]string{"networking", "hostname"}, cfg.Networking.Hostname)
	tree.SetPath([]string{"networking", "wifi_enabled"}, cfg.Networking.WifiEnabled)
	tree.SetPath([]string{"networking", "country_code"}, cfg.Networking.CountryCode)

	ifacePath := []string{"networking", "wifi_interface"}
	if cfg.Networking.WifiInterface != "" {
		tree.SetPath(ifacePath, cfg.Networking.WifiInterface)
	} else if tree.HasPath(ifacePath) {
		if err := tree.DeletePath(ifacePath); err != nil {
			return err
		}
	}

	wifiPath := []string{"networking", "wifi"}
	if len(cfg.Networking.Wifi) > 0 {
		nets := make([]*toml.Tree, 0, len(cfg.Networking.Wifi))
		for _, n := range cfg.Networking.Wifi {
			entry := map[string]interface{}{"ssid": n.SSID}
			if n.PSK != "" {
				entry["psk"] = n.PSK
			}
			t, err := toml.TreeFromMap(entry)
			if err != nil {
				return err
			}
			nets = append(nets, t)
		}
		tree.SetPath(wifiPath, nets)
	} else if tree.HasPath(wifiPath) {
		if err := tree.DeletePath(wifiPath); err != nil {
			return err
		}
	}

	if err := replaceSection(tree, "services", servicesDocument(cfg)); err != nil {
		return err
	}
	return replaceSection(tree, "hardware", hardwareDocument(cfg))
}

func replaceSection(tree *toml.Tree, key string, doc map[string]interface{}) error {
	path := []string{key}
	if len(doc) == 0 {
		if tree.HasPath(path) {
			return tree.DeletePath(path)
		}
		return nil
	}
	sub, err := toml.TreeFromMap(doc)
	if err != nil {
		return err
	}
	tree.SetPath(path, sub)
	return nil
}

func servicesDocument(cfg *model.Config) map[string]interface{} {
	if len(cfg.Services) == 0 {
		return nil
	}
	doc := make(map[string]interface{}, len(cfg.Services))
	for name, svc := range cfg.Services {
		doc[name] = map[string]interface{}{
			"enabled": svc.Enabled,
			"running": svc.Running,
		}
	}
	return doc
}

func hardwareDocument(cfg *model.Config) map[string]interface{} {
	doc := map[string]interface{}{}
	if len(cfg.Hardware.LEDs) > 0 {
		leds := make(map[string]interface{}, len(cfg.Hardware.LEDs))
		for name, led := range cfg.Hardware.LEDs {
			leds[name] = map[string]interface{}{"mode": string(led.Mode)}
		}
		doc["led"] = leds
	}
	if len(cfg.Hardware.Buses) > 0 {
		buses := make(map[string]interface{}, len(cfg.Hardware.Buses))
		for name, bus := range cfg.Hardware.Buses {
			entry := map[string]interface{}{"enabled": bus.Enabled}
			if bus.Speed != nil {
				entry["speed"] = *bus.Speed
			}
			buses[name] = entry
		}
		doc["bus"] = buses
	}
	return doc
}

func ensureMaps(cfg *model.Config) {
	if cfg.Services == nil {
		cfg.Services = map[string]model.Service{}
	}
	if cfg.Hardware.LEDs == nil {
		cfg.Hardware.LEDs = map[string]model.LED{}
	}
	if cfg.Hardware.Buses == nil {
		cfg.Hardware.Buses = map[string]model.Bus{}
	}
}

// tomlPositionRe matches the "(line, column): message" prefix of go-toml
// parse errors.
var tomlPositionRe = regexp.MustCompile(`^\((\d+), (\d+)\): (.*)$`)

func parseError(path string, err error) *ParseError {
	msg := err.Error()
	if m := tomlPositionRe.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		return &ParseError{Path: path, Line: line, Column: col, Message: m[3]}
	}
	return &ParseError{Path: path, Message: msg}
}

// writeFileAtomic writes data to a sibling temp file and renames it over
// path. Leftover temp files from crashed writers are swept after a
// successful rename.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	sweepTempFiles(dir)
	return nil
}

func sweepTempFiles(dir string) {
	stale, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return
	}
	for _, path := range stale {
		os.Remove(path)
	}
}
