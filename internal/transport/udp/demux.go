// Package udp implements the single shared UDP socket (spec §4.4): one listener for the whole
// gateway, an IP-indexed device map populated by TCP connects, and a silent-drop policy for
// unregistered senders with unrecognised payloads. Grounded on the teacher's
// runtime.DeviceAdapter polling loop (runtime/device_adapter.go) for its mutex-guarded map
// bookkeeping style, generalized from an HTTP poll loop to a datagram read loop.
package udp

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fleetbridge/devicegw"
)

// Message is one demultiplexed datagram handed to the manager's unified ingress (spec §4.6).
type Message struct {
	DeviceID devicegw.DeviceID
	Frame    []byte
	FromIP   string
	FromPort int
}

// OnMessage is invoked for every datagram successfully attributed to a device.
type OnMessage func(Message)

// Demultiplexer owns the single shared UDP socket. IP-to-device-id mappings are populated
// externally (by a TCP connect) via Register, and read under a mutex since only this
// demultiplexer's read loop and the manager's connect path touch the map.
type Demultiplexer struct {
	log      *logrus.Entry
	onMsg    OnMessage
	resolver func(payload []byte) (devicegw.DeviceID, bool)

	mu     sync.RWMutex
	byIP   map[string]devicegw.DeviceID
	conn   *net.UDPConn
	cancel context.CancelFunc
}

// NewDemultiplexer constructs a Demultiplexer. resolver implements the implementation-defined
// "extract device id from a JSON payload" rule spec §4.4 step 2 leaves open; it is consulted
// only when the sender IP has no existing mapping.
func NewDemultiplexer(log *logrus.Entry, onMsg OnMessage, resolver func(payload []byte) (devicegw.DeviceID, bool)) *Demultiplexer {
	return &Demultiplexer{
		log:      log,
		onMsg:    onMsg,
		resolver: resolver,
		byIP:     make(map[string]devicegw.DeviceID),
	}
}

// Register maps an IP to a device id, called by the manager on a successful TCP connect (spec
// §4.4 step 1: "populated on TCP connect").
func (d *Demultiplexer) Register(ip string, deviceID devicegw.DeviceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byIP[ip] = deviceID
}

// Unregister removes an IP mapping, called by the manager on disconnect.
func (d *Demultiplexer) Unregister(ip string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byIP, ip)
}

// Listen binds the shared UDP socket on port and reads datagrams until ctx is cancelled.
func (d *Demultiplexer) Listen(ctx context.Context, port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return &devicegw.ConnectionFailedError{Reason: err.Error()}
	}
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.conn = conn
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			d.log.WithError(err).Debug("udp read error")
			return &devicegw.IOError{Reason: err.Error()}
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		d.handleDatagram(payload, addr)
	}
}

// Close stops the read loop and releases the socket.
func (d *Demultiplexer) Close() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *Demultiplexer) handleDatagram(payload []byte, addr *net.UDPAddr) {
	ip := addr.IP.String()

	d.mu.RLock()
	deviceID, known := d.byIP[ip]
	d.mu.RUnlock()

	if !known {
		id, ok := d.lookupFromPayload(payload)
		if !ok {
			return // unregistered sender, unrecognised payload: dropped silently (spec §4.4)
		}
		deviceID = id
		d.mu.Lock()
		d.byIP[ip] = deviceID
		d.mu.Unlock()
	}

	if d.onMsg != nil {
		d.onMsg(Message{DeviceID: deviceID, Frame: payload, FromIP: ip, FromPort: addr.Port})
	}
}

// lookupFromPayload applies the resolver if one was supplied. The exact rule for extracting a
// device id from an unregistered sender's payload is left open by the spec (§9 Open Questions);
// without a resolver, unregistered senders are always dropped rather than guessed at.
func (d *Demultiplexer) lookupFromPayload(payload []byte) (devicegw.DeviceID, bool) {
	if d.resolver == nil {
		return "", false
	}
	return d.resolver(payload)
}
