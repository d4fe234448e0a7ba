package discovery

import (
	"regexp"
	"strings"
)

var espFamilyPattern = regexp.MustCompile(`(?i)esp32|esp|arduino|nodemcu|wemos|devkit`)
var espVendorPattern = regexp.MustCompile(`(?i)esp32|arduino|espressif`)

// acceptCandidate applies spec §4.2 steps 2-3: a mac TXT record is mandatory, then either the
// hostname matches the ESP-family substrings, any TXT value matches the vendor substrings, or
// the service type itself is "arduino" (which always accepts).
func acceptCandidate(serviceType, hostname string, txt map[string]string) bool {
	mac, ok := txt["mac"]
	if !ok || strings.TrimSpace(mac) == "" {
		return false
	}
	if strings.Contains(serviceType, "arduino") {
		return true
	}
	if espFamilyPattern.MatchString(hostname) {
		return true
	}
	for _, v := range txt {
		if espVendorPattern.MatchString(v) {
			return true
		}
	}
	return false
}

// isOwnAdvertisement rejects the manager's own self-advertisement (spec §4.2 step 1): the
// hostname contains the manager's own instance/service name.
func isOwnAdvertisement(hostname, ownInstanceName string) bool {
	return strings.Contains(hostname, ownInstanceName)
}
