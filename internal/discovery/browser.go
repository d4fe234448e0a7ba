// Package discovery browses mDNS for candidate edge nodes (spec §4.2) and advertises the
// gateway's own HTTP service (spec §6). Grounded on
// other_examples/soothill-matter-data-logger's zeroconf.Scanner: a resolver, a buffered entries
// channel, and a consumer goroutine updating a mutex-guarded device map, generalized here from a
// single Matter service type to the two concurrent service types spec §4.2 requires and from a
// single-shot Discover call to a long-lived Browse loop feeding a callback.
package discovery

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/ids"
)

// ServiceTypes are the two mDNS service types browsed concurrently (spec §4.2).
var ServiceTypes = []string{"_arduino._tcp", "_http._tcp"}

const mdnsDomain = "local."

// OwnInstanceName is the gateway's self-advertised instance name (spec §6), used to reject its
// own advertisement when it appears among browse results (spec §4.2 step 1).
const OwnInstanceName = "esp-server"

// Candidate is an accepted browse result ready to become a DeviceConfig/DeviceDiscovered event.
type Candidate struct {
	DeviceID devicegw.DeviceID
	IP       string
	TCPPort  int
	UDPPort  int
	Hostname string
	MAC      string
}

// OnDiscovered is invoked once per first-seen device id; repeated resolutions of an
// already-known id update silently via the browser's own map (spec §4.2 step 5).
type OnDiscovered func(Candidate)

// Browser owns the mDNS discovery lifecycle: two concurrent Browse loops, a discovered-device
// map keyed by canonical device id, and a callback fired only on first sight.
type Browser struct {
	log      *logrus.Entry
	callback OnDiscovered
	udpPort  int

	mu      sync.RWMutex
	devices map[devicegw.DeviceID]Candidate
}

// NewBrowser constructs a Browser. udpPort is attached to every Candidate since mDNS only
// resolves the advertised TCP-style port; devices in this system share one UDP port.
func NewBrowser(log *logrus.Entry, udpPort int, callback OnDiscovered) *Browser {
	return &Browser{
		log:      log,
		callback: callback,
		udpPort:  udpPort,
		devices:  make(map[devicegw.DeviceID]Candidate),
	}
}

// Run browses both service types concurrently until ctx is cancelled. It is best-effort: if the
// resolver cannot be created, Run logs and returns nil so the manager continues on static
// configuration only (spec §4.2 "Discovery is a best-effort collaborator").
func (b *Browser) Run(ctx context.Context) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		b.log.WithError(err).Warn("mdns resolver unavailable, continuing with static config only")
		return nil
	}

	var wg sync.WaitGroup
	for _, svcType := range ServiceTypes {
		entries := make(chan *zeroconf.ServiceEntry, 16)
		wg.Add(1)
		go func(svcType string) {
			defer wg.Done()
			b.consume(svcType, entries)
		}(svcType)

		if err := resolver.Browse(ctx, svcType, mdnsDomain, entries); err != nil {
			b.log.WithError(err).WithField("service_type", svcType).Warn("mdns browse failed")
		}
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (b *Browser) consume(serviceType string, entries chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		cand, ok := b.parseEntry(serviceType, entry)
		if !ok {
			continue
		}

		b.mu.Lock()
		_, known := b.devices[cand.DeviceID]
		b.devices[cand.DeviceID] = cand
		b.mu.Unlock()

		if !known && b.callback != nil {
			b.callback(cand)
		}
	}
}

func (b *Browser) parseEntry(serviceType string, entry *zeroconf.ServiceEntry) (Candidate, bool) {
	if entry == nil {
		return Candidate{}, false
	}
	if isOwnAdvertisement(entry.HostName, OwnInstanceName) {
		return Candidate{}, false
	}

	txt := make(map[string]string, len(entry.Text))
	for _, kv := range entry.Text {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		}
	}

	if !acceptCandidate(serviceType, entry.HostName, txt) {
		return Candidate{}, false
	}

	var addr net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		addr = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		addr = entry.AddrIPv6[0]
	default:
		return Candidate{}, false
	}

	deviceID := devicegw.DeviceID(ids.CanonicalizeMAC(txt["mac"]))

	return Candidate{
		DeviceID: deviceID,
		IP:       addr.String(),
		TCPPort:  entry.Port,
		UDPPort:  b.udpPort,
		Hostname: entry.HostName,
		MAC:      txt["mac"],
	}, true
}

// Lookup returns the last-known candidate for a device id, used by the subscriber channel to
// pull a DeviceConfig from discovery when a client registers for an undiscovered-but-known
// device (spec §4.8 step 3).
func (b *Browser) Lookup(id devicegw.DeviceID) (Candidate, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.devices[id]
	return c, ok
}
