// Package networking adapts the model's networking section to the live
// system: hostname via hostnamectl and /etc/hosts, the wireless link state
// via ip(8) and the wifi state file, and Wi-Fi credentials plus regulatory
// domain via wpa_supplicant.conf.
package networking

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mpwrd/mpwrd-config/pkg/adapters"
	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// Adapter implements adapters.Adapter for the networking domain.
type Adapter struct {
	run     adapters.Runner
	etcRoot string
	sysRoot string
	logger  zerolog.Logger
}

// Option configures the adapter.
type Option func(*Adapter)

// WithRunner substitutes the command runner.
func WithRunner(r adapters.Runner) Option { return func(a *Adapter) { a.run = r } }

// WithEtcRoot relocates the /etc tree, for tests.
func WithEtcRoot(dir string) Option { return func(a *Adapter) { a.etcRoot = dir } }

// WithSysRoot relocates the /sys tree, for tests.
func WithSysRoot(dir string) Option { return func(a *Adapter) { a.sysRoot = dir } }

// WithLogger sets the adapter logger.
func WithLogger(l zerolog.Logger) Option { return func(a *Adapter) { a.logger = l } }

// New creates a networking adapter bound to the host system.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		run:     adapters.ExecRunner(),
		etcRoot: "/etc",
		sysRoot: "/sys",
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Domain implements adapters.Adapter.
func (a *Adapter) Domain() string { return model.DomainNetworking }

func (a *Adapter) supplicantPath() string {
	return filepath.Join(a.etcRoot, "wpa_supplicant", "wpa_supplicant.conf")
}

func (a *Adapter) hostsPath() string { return filepath.Join(a.etcRoot, "hosts") }

func (a *Adapter) statePath() string { return filepath.Join(a.etcRoot, "wifi_state.txt") }

func (a *Adapter) netClassDir() string { return filepath.Join(a.sysRoot, "class", "net") }

// Read implements adapters.Adapter. Missing files yield the model defaults;
// only unexpected I/O failures surface as a ReadError.
func (a *Adapter) Read(ctx context.Context, scope *model.Config) (*model.Config, error) {
	snap := &model.Config{Networking: model.Default().Networking}

	// Selection input, mirrored from scope so it never shows up as drift.
	snap.Networking.WifiInterface = scope.Networking.WifiInterface

	snap.Networking.Hostname = a.currentHostname(ctx)

	iface := a.resolveInterface(scope)
	up, err := a.wifiLinkUp(iface)
	if err != nil {
		return nil, &adapters.ReadError{Domain: a.Domain(), Err: err}
	}
	snap.Networking.WifiEnabled = up

	raw, err := os.ReadFile(a.supplicantPath())
	switch {
	case err == nil:
		country, nets := parseSupplicant(string(raw))
		if country != "" {
			snap.Networking.CountryCode = country
		}
		snap.Networking.Wifi = nets
	case errors.Is(err, fs.ErrNotExist):
		// No supplicant config yet: defaults stand.
	default:
		return nil, &adapters.ReadError{Domain: a.Domain(), Err: err}
	}

	return snap, nil
}

// currentHostname asks hostnamectl for the static hostname and falls back
// to the kernel hostname, then the model default.
func (a *Adapter) currentHostname(ctx context.Context) string {
	if out, err := a.run.Run(ctx, "hostnamectl", "--static"); err == nil && out != "" {
		return out
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return model.Default().Networking.Hostname
}

// wifiLinkUp reports the wireless link state. The wifi state file is
// authoritative when present; otherwise the interface operstate decides.
func (a *Adapter) wifiLinkUp(iface string) (bool, error) {
	raw, err := os.ReadFile(a.statePath())
	if err == nil {
		switch strings.TrimSpace(string(raw)) {
		case "up":
			return true, nil
		case "down":
			return false, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if iface == "" {
		return false, nil
	}
	raw, err = os.ReadFile(filepath.Join(a.netClassDir(), iface, "operstate"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(string(raw)) == "up", nil
}

// resolveInterface picks the wireless interface to operate on: the pinned
// one when present and wireless, otherwise the single physical wireless
// interface, otherwise none.
func (a *Adapter) resolveInterface(scope *model.Config) string {
	ifaces := a.wirelessInterfaces()
	preferred := scope.Networking.WifiInterface
	if preferred != "" {
		for _, iface := range ifaces {
			if iface == preferred {
				return preferred
			}
		}
		return ""
	}
	if len(ifaces) == 1 {
		return ifaces[0]
	}
	return ""
}

// wirelessInterfaces lists physical wireless interfaces from sysfs.
func (a *Adapter) wirelessInterfaces() []string {
	entries, err := os.ReadDir(a.netClassDir())
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if name == "lo" {
			continue
		}
		wireless := filepath.Join(a.netClassDir(), name, "wireless")
		device := filepath.Join(a.netClassDir(), name, "device")
		if pathExists(wireless) && pathExists(device) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Apply implements adapters.Adapter. Fields are handled in declaration
// order; a failing field never blocks the remaining ones.
func (a *Adapter) Apply(ctx context.Context, desired, current *model.Config) ([]adapters.AppliedChange, []*adapters.ApplyError) {
	var applied []adapters.AppliedChange
	var failures []*adapters.ApplyError
	iface := a.resolveInterface(desired)

	if desired.Networking.Hostname != current.Networking.Hostname {
		if err := a.applyHostname(ctx, current.Networking.Hostname, desired.Networking.Hostname); err != nil {
			failures = append(failures, &adapters.ApplyError{Field: model.FieldHostname, Err: err})
		} else {
			applied = append(applied, adapters.AppliedChange{
				Domain: a.Domain(),
				Field:  model.FieldHostname,
				Before: current.Networking.Hostname,
				After:  desired.Networking.Hostname,
			})
		}
	}

	if desired.Networking.WifiEnabled != current.Networking.WifiEnabled {
		if err := a.applyWifiState(ctx, iface, desired.Networking.WifiEnabled); err != nil {
			failures = append(failures, &adapters.ApplyError{Field: model.FieldWifiEnabled, Err: err})
		} else {
			applied = append(applied, adapters.AppliedChange{
				Domain: a.Domain(),
				Field:  model.FieldWifiEnabled,
				Before: strconv.FormatBool(current.Networking.WifiEnabled),
				After:  strconv.FormatBool(desired.Networking.WifiEnabled),
			})
		}
	}

	countryChanged := desired.Networking.CountryCode != current.Networking.CountryCode
	wifiChanged := !WifiNetworksEqual(desired.Networking.Wifi, current.Networking.Wifi)
	if countryChanged || wifiChanged {
		err := a.rewriteSupplicant(ctx, desired, iface)
		if countryChanged {
			if err != nil {
				failures = append(failures, &adapters.ApplyError{Field: model.FieldCountryCode, Err: err})
			} else {
				applied = append(applied, adapters.AppliedChange{
					Domain: a.Domain(),
					Field:  model.FieldCountryCode,
					Before: current.Networking.CountryCode,
					After:  desired.Networking.CountryCode,
				})
			}
		}
		if wifiChanged {
			if err != nil {
				failures = append(failures, &adapters.ApplyError{Field: model.FieldWifiNetworks, Err: err})
			} else {
				applied = append(applied, adapters.AppliedChange{
					Domain: a.Domain(),
					Field:  model.FieldWifiNetworks,
					Before: RenderNetworks(current.Networking.Wifi),
					After:  RenderNetworks(desired.Networking.Wifi),
				})
			}
		}
	}

	return applied, failures
}

// applyHostname sets the system hostname, rewrites /etc/hosts and pokes
// the services that cache the old name.
func (a *Adapter) applyHostname(ctx context.Context, old, hostname string) error {
	if _, err := a.run.Run(ctx, "hostnamectl", "set-hostname", hostname); err != nil {
		return err
	}
	if err := a.rewriteHosts(old, hostname); err != nil {
		return fmt.Errorf("update hosts file: %w", err)
	}
	// mDNS advertises the hostname; restart is best effort.
	if _, err := a.run.Run(ctx, "systemctl", "restart", "avahi-daemon"); err != nil {
		a.logger.Warn().Err(err).Msg("avahi-daemon restart failed after hostname change")
	}
	return nil
}

func (a *Adapter) rewriteHosts(old, hostname string) error {
	raw, err := os.ReadFile(a.hostsPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	content := string(raw)
	updated := content
	if old != "" {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(old) + `\b`)
		updated = re.ReplaceAllString(updated, hostname)
	}
	if !strings.Contains(updated, hostname) {
		updated = strings.TrimRight(updated, "\n") + "\n127.0.1.1 " + hostname + "\n"
	}
	if updated == content {
		return nil
	}
	return os.WriteFile(a.hostsPath(), []byte(updated), 0o644)
}

// applyWifiState flips the wireless link and persists the state file the
// companion daemons read.
func (a *Adapter) applyWifiState(ctx context.Context, iface string, up bool) error {
	if iface == "" {
		return errors.New("no wireless interface available")
	}
	state := "down"
	if up {
		state = "up"
	}
	if _, err := a.run.Run(ctx, "ip", "link", "set", iface, state); err != nil {
		return err
	}
	return os.WriteFile(a.statePath(), []byte(state), 0o644)
}

// rewriteSupplicant regenerates the managed parts of wpa_supplicant.conf
// (country line and network blocks) while keeping unrelated directives,
// then asks wpa_supplicant to pick up the new file.
func (a *Adapter) rewriteSupplicant(ctx context.Context, desired *model.Config, iface string) error {
	var existing string
	raw, err := os.ReadFile(a.supplicantPath())
	if err == nil {
		existing = string(raw)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	content := renderSupplicant(existing, desired.Networking.CountryCode, desired.Networking.Wifi)
	if err := os.MkdirAll(filepath.Dir(a.supplicantPath()), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(a.supplicantPath(), []byte(content), 0o600); err != nil {
		return err
	}

	if iface != "" && a.run.LookPath("wpa_cli") {
		if _, err := a.run.Run(ctx, "wpa_cli", "-i", iface, "reconfigure"); err != nil {
			a.logger.Warn().Err(err).Str("interface", iface).Msg("wpa_cli reconfigure failed")
		}
	}
	return nil
}

// RenderNetworks renders a wifi list for change reporting; passphrases are
// never included.
func RenderNetworks(nets []model.WifiNetwork) string {
	if len(nets) == 0 {
		return "none"
	}
	ssids := make([]string, len(nets))
	for i, n := range nets {
		ssids[i] = n.SSID
	}
	return strings.Join(ssids, ",")
}
