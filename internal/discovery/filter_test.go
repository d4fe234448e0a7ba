package discovery

import "testing"

func TestAcceptCandidateRequiresMAC(t *testing.T) {
	if acceptCandidate("_http._tcp", "esp32-abc.local.", map[string]string{}) {
		t.Fatal("expected rejection without mac TXT record")
	}
}

func TestAcceptCandidateESPHostname(t *testing.T) {
	txt := map[string]string{"mac": "AA:BB:CC:DD:EE:01"}
	if !acceptCandidate("_http._tcp", "esp32-abc.local.", txt) {
		t.Fatal("expected acceptance on ESP-family hostname")
	}
}

func TestAcceptCandidateVendorTXT(t *testing.T) {
	txt := map[string]string{"mac": "AA:BB:CC:DD:EE:01", "vendor": "Espressif Systems"}
	if !acceptCandidate("_http._tcp", "random-host.local.", txt) {
		t.Fatal("expected acceptance on vendor TXT match")
	}
}

func TestAcceptCandidateArduinoServiceAlwaysAccepts(t *testing.T) {
	txt := map[string]string{"mac": "AA:BB:CC:DD:EE:01"}
	if !acceptCandidate("_arduino._tcp", "random-host.local.", txt) {
		t.Fatal("expected unconditional acceptance for arduino service type")
	}
}

func TestAcceptCandidateRejectsUnrelatedDevice(t *testing.T) {
	txt := map[string]string{"mac": "AA:BB:CC:DD:EE:01", "model": "printer"}
	if acceptCandidate("_http._tcp", "random-printer.local.", txt) {
		t.Fatal("expected rejection of non-ESP http service")
	}
}

func TestIsOwnAdvertisement(t *testing.T) {
	if !isOwnAdvertisement("esp-server.local.", OwnInstanceName) {
		t.Fatal("expected own advertisement to be detected")
	}
	if isOwnAdvertisement("esp32-abc.local.", OwnInstanceName) {
		t.Fatal("expected unrelated hostname not to be flagged")
	}
}
