package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbridge/devicegw"
)

func TestParseEntryAcceptsAndCanonicalizesMAC(t *testing.T) {
	b := NewBrowser(logrus.NewEntry(logrus.New()), 3232, nil)
	entry := &zeroconf.ServiceEntry{
		HostName: "esp32-kiln.local.",
		Port:     3232,
		Text:     []string{"mac=aa:bb:cc:dd:ee:01"},
	}
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.50")}

	cand, ok := b.parseEntry("_http._tcp", entry)
	require.True(t, ok)
	assert.Equal(t, devicegw.DeviceID("AA-BB-CC-DD-EE-01"), cand.DeviceID)
	assert.Equal(t, "192.168.1.50", cand.IP)
	assert.Equal(t, 3232, cand.TCPPort)
	assert.Equal(t, 3232, cand.UDPPort)
}

func TestParseEntryRejectsOwnAdvertisement(t *testing.T) {
	b := NewBrowser(logrus.NewEntry(logrus.New()), 3232, nil)
	entry := &zeroconf.ServiceEntry{
		HostName: "esp-server.local.",
		Port:     80,
		Text:     []string{"mac=aa:bb:cc:dd:ee:01"},
	}
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.1")}

	_, ok := b.parseEntry("_http._tcp", entry)
	assert.False(t, ok)
}

func TestConsumeFiresCallbackOnlyOnFirstSight(t *testing.T) {
	var fired int
	b := NewBrowser(logrus.NewEntry(logrus.New()), 3232, func(Candidate) { fired++ })

	entries := make(chan *zeroconf.ServiceEntry, 2)
	entry := &zeroconf.ServiceEntry{
		HostName: "esp32-kiln.local.",
		Port:     3232,
		Text:     []string{"mac=aa:bb:cc:dd:ee:01"},
	}
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.50")}
	entries <- entry
	entries <- entry
	close(entries)

	b.consume("_http._tcp", entries)

	assert.Equal(t, 1, fired)
	_, ok := b.Lookup("AA-BB-CC-DD-EE-01")
	assert.True(t, ok)
}
