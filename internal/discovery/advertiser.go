package discovery

import (
	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

// Advertise registers the gateway's own mDNS service: instance "esp-server", service
// "_http._tcp", TXT {version=1.0, path=/, type=esp32-manager, protocol=http}. No host name is
// passed to zeroconf.Register, so the advertised host is this machine's own hostname under
// ".local.", not "esp-server.local.". The returned zeroconf.Server must be shut down by the caller; returns nil
// (not an error) if registration fails, since self-advertisement is best-effort like discovery.
func Advertise(log *logrus.Entry, port int) *zeroconf.Server {
	server, err := zeroconf.Register(
		OwnInstanceName,
		"_http._tcp",
		mdnsDomain,
		port,
		[]string{"version=1.0", "path=/", "type=esp32-manager", "protocol=http"},
		nil,
	)
	if err != nil {
		log.WithError(err).Warn("mdns self-advertisement failed")
		return nil
	}
	return server
}
