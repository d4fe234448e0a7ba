// Package ids canonicalizes the device identifier alphabets the gateway accepts:
// MAC-colon ("aa:bb:cc:dd:ee:ff"), MAC-dash ("AA-BB-CC-DD-EE-FF" upper-case, the canonical wire form),
// and 24-hex UID strings self-reported by serial-attached nodes.
package ids

import (
	"regexp"
	"strings"
)

// System is the reserved device id used for broadcast-discovery events (spec §3, §4.2).
const System = "system"

var (
	macColon = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)
	macDash  = regexp.MustCompile(`^([0-9A-Fa-f]{2}-){5}[0-9A-Fa-f]{2}$`)
	hexUID   = regexp.MustCompile(`^[0-9A-Fa-f]{24}$`)
)

// Valid reports whether s matches one of the three accepted device-id alphabets, or is the
// reserved system id.
func Valid(s string) bool {
	if s == System {
		return true
	}
	return macColon.MatchString(s) || macDash.MatchString(s) || hexUID.MatchString(s)
}

// CanonicalizeMAC rewrites a colon- or dash-delimited MAC to the canonical dash form used as
// device_id for network devices. Non-MAC input (UARTs self-report their own id) is returned
// unchanged.
func CanonicalizeMAC(s string) string {
	if macColon.MatchString(s) {
		return strings.ReplaceAll(strings.ToUpper(s), ":", "-")
	}
	if macDash.MatchString(s) {
		return strings.ToUpper(s)
	}
	return s
}

// Equivalent reports whether a and b name the same device under the MAC-colon/MAC-dash
// equivalence rule applied at the auth boundary (spec §3).
func Equivalent(a, b string) bool {
	if a == b {
		return true
	}
	return CanonicalizeMAC(a) == CanonicalizeMAC(b)
}
