package networking

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// wpa_passphrase parameters: PBKDF2-SHA1, SSID as salt, 4096 rounds,
// 256-bit key.
const (
	pskIterations = 4096
	pskKeyLen     = 32
)

// DerivePSK turns a passphrase into the raw preshared key hex string that
// wpa_supplicant.conf stores. A value that already is a 64-digit hex key
// passes through unchanged, lowercased.
func DerivePSK(ssid, passphrase string) string {
	if IsRawPSK(passphrase) {
		return strings.ToLower(passphrase)
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(ssid), pskIterations, pskKeyLen, sha1.New)
	return hex.EncodeToString(key)
}

// IsRawPSK reports whether s is already a derived 256-bit key in hex form.
func IsRawPSK(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// pskEqual compares two credential values for one SSID. The file on disk
// holds derived keys while the desired model holds passphrases, so equality
// is decided on the derived form.
func pskEqual(ssid, a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	return DerivePSK(ssid, a) == DerivePSK(ssid, b)
}

// WifiNetworksEqual reports whether two wifi lists describe the same
// networks in the same order, treating a passphrase and its derived key as
// the same credential.
func WifiNetworksEqual(a, b []model.WifiNetwork) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].SSID != b[i].SSID {
			return false
		}
		if !pskEqual(a[i].SSID, a[i].PSK, b[i].PSK) {
			return false
		}
	}
	return true
}
