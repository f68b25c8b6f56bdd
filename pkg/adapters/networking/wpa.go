package networking

import (
	"fmt"
	"strings"

	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// defaultSupplicantHeader seeds a fresh wpa_supplicant.conf when no file
// exists yet.
const defaultSupplicantHeader = "ctrl_interface=DIR=/var/run/wpa_supplicant GROUP=netdev\nupdate_config=1\n"

// parseSupplicant extracts the regulatory country and the configured
// network blocks from a wpa_supplicant.conf body. Unknown directives are
// ignored here; renderSupplicant is responsible for keeping them.
func parseSupplicant(content string) (string, []model.WifiNetwork) {
	var country string
	var nets []model.WifiNetwork

	var inNetwork bool
	var current model.WifiNetwork
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
		case inNetwork && line == "}":
			if current.SSID != "" {
				nets = append(nets, current)
			}
			inNetwork = false
		case inNetwork:
			key, value, ok := splitDirective(line)
			if !ok {
				continue
			}
			switch key {
			case "ssid":
				current.SSID = unquote(value)
			case "psk":
				current.PSK = unquote(value)
			}
		case line == "network={" || strings.HasPrefix(line, "network="):
			inNetwork = true
			current = model.WifiNetwork{}
		default:
			key, value, ok := splitDirective(line)
			if ok && key == "country" {
				country = strings.ToUpper(value)
			}
		}
	}
	return country, nets
}

// renderSupplicant produces the new wpa_supplicant.conf body: every
// directive of the existing file that is not managed here survives in
// place, the country line is replaced or inserted, and the network blocks
// are regenerated from the model.
func renderSupplicant(existing, country string, nets []model.WifiNetwork) string {
	var header []string
	var inNetwork bool
	for _, line := range strings.Split(existing, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case inNetwork:
			if trimmed == "}" {
				inNetwork = false
			}
		case trimmed == "network={" || strings.HasPrefix(trimmed, "network="):
			inNetwork = true
		default:
			if key, _, ok := splitDirective(trimmed); ok && key == "country" {
				continue
			}
			header = append(header, line)
		}
	}

	var b strings.Builder
	headerText := strings.TrimRight(strings.Join(header, "\n"), "\n")
	if strings.TrimSpace(headerText) == "" {
		b.WriteString(defaultSupplicantHeader)
	} else {
		b.WriteString(headerText)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "country=%s\n", country)

	for _, n := range nets {
		b.WriteString("\nnetwork={\n")
		fmt.Fprintf(&b, "\tssid=%q\n", n.SSID)
		if n.PSK == "" {
			b.WriteString("\tkey_mgmt=NONE\n")
		} else {
			fmt.Fprintf(&b, "\tpsk=%s\n", DerivePSK(n.SSID, n.PSK))
		}
		b.WriteString("}\n")
	}
	return b.String()
}

func splitDirective(line string) (string, string, bool) {
	idx := strings.Index(line, "=")
	if idx <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
