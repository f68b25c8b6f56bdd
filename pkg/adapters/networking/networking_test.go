package networking

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// fakeRunner records every command and serves canned outputs.
type fakeRunner struct {
	outputs map[string]string
	fail    map[string]error
	missing map[string]bool
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, key)
	if err := f.fail[key]; err != nil {
		return "", err
	}
	return f.outputs[key], nil
}

func (f *fakeRunner) LookPath(name string) bool { return !f.missing[name] }

func (f *fakeRunner) called(key string) bool {
	for _, c := range f.calls {
		if c == key {
			return true
		}
	}
	return false
}

func newTestAdapter(t *testing.T, run *fakeRunner) (*Adapter, string, string) {
	t.Helper()
	etc := t.TempDir()
	sys := t.TempDir()
	if run.outputs == nil {
		run.outputs = map[string]string{}
	}
	if run.fail == nil {
		run.fail = map[string]error{}
	}
	if run.missing == nil {
		run.missing = map[string]bool{}
	}
	return New(WithRunner(run), WithEtcRoot(etc), WithSysRoot(sys)), etc, sys
}

func addWireless(t *testing.T, sys, iface string) {
	t.Helper()
	dir := filepath.Join(sys, "class", "net", iface)
	for _, sub := range []string{"wireless", "device"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "operstate"), []byte("down\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadDefaultsWhenFilesMissing(t *testing.T) {
	run := &fakeRunner{outputs: map[string]string{"hostnamectl --static": "node-7"}}
	a, _, _ := newTestAdapter(t, run)

	snap, err := a.Read(context.Background(), model.Default())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Networking.Hostname != "node-7" {
		t.Errorf("hostname = %q, want node-7", snap.Networking.Hostname)
	}
	if snap.Networking.WifiEnabled {
		t.Error("wifi should default to disabled with no state file")
	}
	if snap.Networking.CountryCode != "US" {
		t.Errorf("country = %q, want default US", snap.Networking.CountryCode)
	}
	if len(snap.Networking.Wifi) != 0 {
		t.Errorf("expected no networks, got %v", snap.Networking.Wifi)
	}
}

func TestReadParsesSupplicant(t *testing.T) {
	run := &fakeRunner{}
	a, etc, _ := newTestAdapter(t, run)

	conf := "ctrl_interface=DIR=/var/run/wpa_supplicant GROUP=netdev\n" +
		"update_config=1\n" +
		"country=DE\n\n" +
		"network={\n\tssid=\"mesh\"\n\tpsk=0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef\n}\n\n" +
		"network={\n\tssid=\"cafe\"\n\tkey_mgmt=NONE\n}\n"
	if err := os.MkdirAll(filepath.Join(etc, "wpa_supplicant"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(etc, "wpa_supplicant", "wpa_supplicant.conf"), []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	snap, err := a.Read(context.Background(), model.Default())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Networking.CountryCode != "DE" {
		t.Errorf("country = %q, want DE", snap.Networking.CountryCode)
	}
	if len(snap.Networking.Wifi) != 2 {
		t.Fatalf("expected 2 networks, got %d", len(snap.Networking.Wifi))
	}
	if snap.Networking.Wifi[0].SSID != "mesh" || snap.Networking.Wifi[1].SSID != "cafe" {
		t.Errorf("ssids out of order: %v", snap.Networking.Wifi)
	}
	if snap.Networking.Wifi[1].PSK != "" {
		t.Errorf("open network should have empty psk, got %q", snap.Networking.Wifi[1].PSK)
	}
}

func TestReadHonorsWifiStateFile(t *testing.T) {
	run := &fakeRunner{}
	a, etc, _ := newTestAdapter(t, run)

	if err := os.WriteFile(filepath.Join(etc, "wifi_state.txt"), []byte("up\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err := a.Read(context.Background(), model.Default())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !snap.Networking.WifiEnabled {
		t.Error("state file says up, snapshot disagrees")
	}
}

func TestApplyHostnameRewritesHosts(t *testing.T) {
	run := &fakeRunner{}
	a, etc, _ := newTestAdapter(t, run)

	hosts := "127.0.0.1 localhost\n127.0.1.1 mpwrd\n"
	if err := os.WriteFile(filepath.Join(etc, "hosts"), []byte(hosts), 0o644); err != nil {
		t.Fatal(err)
	}

	current := model.Default()
	desired := model.Default()
	desired.Networking.Hostname = "node-9"

	applied, failures := a.Apply(context.Background(), desired, current)
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(applied) != 1 || applied[0].Field != model.FieldHostname {
		t.Fatalf("expected one hostname change, got %v", applied)
	}
	if !run.called("hostnamectl set-hostname node-9") {
		t.Errorf("hostnamectl not invoked, calls: %v", run.calls)
	}

	raw, err := os.ReadFile(filepath.Join(etc, "hosts"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "mpwrd") || !strings.Contains(string(raw), "node-9") {
		t.Errorf("hosts file not rewritten: %q", raw)
	}
}

func TestApplyWifiState(t *testing.T) {
	run := &fakeRunner{}
	a, etc, sys := newTestAdapter(t, run)
	addWireless(t, sys, "wlan0")

	current := model.Default()
	desired := model.Default()
	desired.Networking.WifiEnabled = true

	applied, failures := a.Apply(context.Background(), desired, current)
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(applied) != 1 || applied[0].Field != model.FieldWifiEnabled {
		t.Fatalf("expected one wifi_enabled change, got %v", applied)
	}
	if !run.called("ip link set wlan0 up") {
		t.Errorf("ip link not invoked, calls: %v", run.calls)
	}

	raw, err := os.ReadFile(filepath.Join(etc, "wifi_state.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(raw)) != "up" {
		t.Errorf("state file = %q, want up", raw)
	}
}

func TestApplyWifiStateFailsWithoutInterface(t *testing.T) {
	run := &fakeRunner{}
	a, _, _ := newTestAdapter(t, run)

	current := model.Default()
	desired := model.Default()
	desired.Networking.WifiEnabled = true

	_, failures := a.Apply(context.Background(), desired, current)
	if len(failures) != 1 || failures[0].Field != model.FieldWifiEnabled {
		t.Fatalf("expected one wifi_enabled failure, got %v", failures)
	}
}

func TestApplyFieldFailureDoesNotBlockSiblings(t *testing.T) {
	run := &fakeRunner{
		fail: map[string]error{"hostnamectl set-hostname node-9": os.ErrPermission},
	}
	a, _, sys := newTestAdapter(t, run)
	addWireless(t, sys, "wlan0")

	current := model.Default()
	desired := model.Default()
	desired.Networking.Hostname = "node-9"
	desired.Networking.WifiEnabled = true

	applied, failures := a.Apply(context.Background(), desired, current)
	if len(failures) != 1 || failures[0].Field != model.FieldHostname {
		t.Fatalf("expected hostname failure only, got %v", failures)
	}
	if len(applied) != 1 || applied[0].Field != model.FieldWifiEnabled {
		t.Fatalf("wifi_enabled should still apply, got %v", applied)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	run := &fakeRunner{
		outputs: map[string]string{"hostnamectl --static": "mpwrd"},
		missing: map[string]bool{"wpa_cli": true},
	}
	a, _, sys := newTestAdapter(t, run)
	addWireless(t, sys, "wlan0")

	current := model.Default()
	desired := model.Default()
	desired.Networking.WifiEnabled = true
	desired.Networking.CountryCode = "NZ"
	desired.Networking.Wifi = []model.WifiNetwork{{SSID: "mesh", PSK: "correct horse"}}

	if _, failures := a.Apply(context.Background(), desired, current); len(failures) != 0 {
		t.Fatalf("first apply failed: %v", failures)
	}

	snap, err := a.Read(context.Background(), desired)
	if err != nil {
		t.Fatalf("read after apply: %v", err)
	}
	applied, failures := a.Apply(context.Background(), desired, snap)
	if len(failures) != 0 {
		t.Fatalf("second apply failed: %v", failures)
	}
	if len(applied) != 0 {
		t.Errorf("second apply should be a no-op, got %v", applied)
	}
}

func TestRenderSupplicantPreservesUnmanagedDirectives(t *testing.T) {
	existing := "ctrl_interface=DIR=/var/run/wpa_supplicant GROUP=netdev\n" +
		"update_config=1\n" +
		"ap_scan=1\n" +
		"country=US\n\n" +
		"network={\n\tssid=\"old\"\n\tpsk=deadbeef\n}\n"

	out := renderSupplicant(existing, "DE", []model.WifiNetwork{{SSID: "mesh", PSK: "correct horse"}})

	if !strings.Contains(out, "ap_scan=1") {
		t.Error("unmanaged directive dropped")
	}
	if !strings.Contains(out, "country=DE") || strings.Contains(out, "country=US") {
		t.Errorf("country not replaced:\n%s", out)
	}
	if strings.Contains(out, `ssid="old"`) {
		t.Error("stale network block survived")
	}
	if !strings.Contains(out, `ssid="mesh"`) {
		t.Errorf("new network block missing:\n%s", out)
	}
	if strings.Contains(out, "correct horse") {
		t.Error("plaintext passphrase must never reach the file")
	}
}

func TestDerivePSKMatchesWpaPassphrase(t *testing.T) {
	// Reference vector from IEEE 802.11i annex.
	got := DerivePSK("IEEE", "password")
	want := "f42c6fc52df0ebef9ebb4b90b38a5f902e83fe1b135a70e23aed762e9710a12e"
	if got != want {
		t.Errorf("DerivePSK = %s, want %s", got, want)
	}
}

func TestWifiNetworksEqualAcrossDerivation(t *testing.T) {
	plain := []model.WifiNetwork{{SSID: "IEEE", PSK: "password"}}
	derived := []model.WifiNetwork{{SSID: "IEEE", PSK: "f42c6fc52df0ebef9ebb4b90b38a5f902e83fe1b135a70e23aed762e9710a12e"}}

	if !WifiNetworksEqual(plain, derived) {
		t.Error("passphrase and derived key should compare equal")
	}
	other := []model.WifiNetwork{{SSID: "IEEE", PSK: "different pass"}}
	if WifiNetworksEqual(plain, other) {
		t.Error("different passphrases should not compare equal")
	}
}
