package channel

import (
	"context"
	"fmt"
	"hash/fnv"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/discovery"
	"github.com/fleetbridge/devicegw/internal/eventstore"
	"github.com/fleetbridge/devicegw/internal/identity"
	"github.com/fleetbridge/devicegw/internal/ids"
	"github.com/fleetbridge/devicegw/internal/manager"
)

// Keepalive timing, matched to other_examples/stepherg-blizzardgw's ws-handler.go constants
// (spec §6 does not mandate exact values; this reuses the pack's own established cadence).
const (
	pongWait   = 75 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// Client owns one browser tab's websocket connection and every device it has registered for.
type Client struct {
	id   string
	user identity.User
	conn *websocket.Conn
	wmu  sync.Mutex

	manager   *manager.Manager
	store     *eventstore.Store
	identity  identity.Identity
	discovery *discovery.Browser
	log       *logrus.Entry

	mu   sync.Mutex
	subs map[devicegw.DeviceID]chan struct{} // device -> forwarder-stop signal

	done chan struct{}
}

// newClientID follows spec §4.8's "user-hash + short-random" scheme so two tabs of the same
// user get distinct subscriber identities.
func newClientID(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return fmt.Sprintf("%08x-%s", h.Sum32(), uuid.NewString()[:8])
}

func newClient(conn *websocket.Conn, user identity.User, mgr *manager.Manager, store *eventstore.Store, id identity.Identity, disc *discovery.Browser, log *logrus.Entry) *Client {
	return &Client{
		id:        newClientID(user.UserID),
		user:      user,
		conn:      conn,
		manager:   mgr,
		store:     store,
		identity:  id,
		discovery: disc,
		log:       log.WithField("client_id", ""),
		subs:      make(map[devicegw.DeviceID]chan struct{}),
		done:      make(chan struct{}),
	}
}

// run owns the connection's lifetime: ping loop, read loop, and per-device forwarder goroutines
// started as registrations happen.
func (c *Client) run() {
	c.log = c.log.WithField("client_id", c.id)
	defer c.close()

	c.conn.SetReadLimit(256 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.pingLoop()

	for {
		var msg InboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.handle(msg)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.wmu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.wmu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) writeJSON(v interface{}) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			c.log.WithError(err).Debug("write timeout")
			return
		}
		c.log.WithError(err).Debug("write error")
	}
}

func (c *Client) handle(msg InboundMessage) {
	switch msg.Type {
	case TypeRegisterForDevice:
		c.handleRegister(msg.DeviceID, msg.SubscriptionType)
	case TypeUnregisterForDevice:
		c.handleUnregister(msg.DeviceID)
	case TypeDeviceEvent:
		c.handleDeviceEvent(msg.DeviceID, msg.EventsForDevice)
	case TypePing:
		c.writeJSON(newPong(msg.Timestamp))
	default:
		c.writeJSON(OutboundError{Type: "error", Reason: fmt.Sprintf("unrecognised message type %q", msg.Type)})
	}
}

// handleRegister implements spec §4.8 "register handling".
func (c *Client) handleRegister(deviceID devicegw.DeviceID, subscriptionType string) {
	kind := devicegw.Full
	if subscriptionType == "light" {
		kind = devicegw.Light
	}

	if !c.authorise(deviceID) {
		c.writeJSON(OutboundError{Type: "error", DeviceID: deviceID, Reason: devicegw.ErrUnauthorised.Error()})
		return
	}

	replay, err := c.store.RegisterClient(deviceID, c.id, c.user.UserID, c.user.DisplayName, kind)
	if err != nil {
		c.writeJSON(OutboundError{Type: "error", DeviceID: deviceID, Reason: err.Error()})
		return
	}

	_, knownToManager := c.manager.ConnectionType(deviceID)

	if kind == devicegw.Full && (!knownToManager || c.isTCPUDP(deviceID)) {
		if !knownToManager {
			c.manager.AddDevice(c.resolveConfig(deviceID))
		}
		if c.isTCPUDP(deviceID) {
			if err := c.manager.ConnectDevice(context.Background(), deviceID); err != nil {
				c.log.WithError(err).WithField("device_id", string(deviceID)).Warn("connect_device failed on register")
			}
		}
	} else if kind == devicegw.Light && !knownToManager {
		c.manager.AddDevice(c.resolveConfig(deviceID))
		c.writeJSON(OutboundBatch{DeviceID: deviceID, EventsForDevice: []devicegw.EventRecord{{
			Event: devicegw.Event{Kind: devicegw.EventConnectionStatus, ConnectionStatus: &devicegw.ConnectionStatus{Connected: false}},
		}}})
	}

	sub, ok := c.store.Subscriber(deviceID, c.id)
	if ok {
		c.startForwarder(deviceID, sub)
	}

	c.writeJSON(OutboundBatch{DeviceID: deviceID, EventsForDevice: replay})
}

func (c *Client) isTCPUDP(deviceID devicegw.DeviceID) bool {
	ct, ok := c.manager.ConnectionType(deviceID)
	return ok && ct == devicegw.ConnTypeTCPUDP
}

// resolveConfig pulls a DeviceConfig from discovery when known, falling back to a bare default
// (spec §4.8 step 3: "pull config from discovery if known, else default").
func (c *Client) resolveConfig(deviceID devicegw.DeviceID) devicegw.DeviceConfig {
	if c.discovery != nil {
		if cand, ok := c.discovery.Lookup(deviceID); ok {
			return devicegw.DeviceConfig{
				DeviceID: deviceID,
				Source:   devicegw.SourceTCP,
				IP:       cand.IP,
				TCPPort:  cand.TCPPort,
				UDPPort:  cand.UDPPort,
			}
		}
	}
	return devicegw.DeviceConfig{DeviceID: deviceID, Source: devicegw.SourceTCP, TCPPort: 3232, UDPPort: 3232}
}

// authorise implements spec §4.8 step 1: guests bypass; system/discovered/MAC-keyed ids grant R
// to any authenticated user without consulting Identity; anything else requires an explicit
// grade from the Identity collaborator.
func (c *Client) authorise(deviceID devicegw.DeviceID) bool {
	if c.user.UserID == identity.Guest {
		return true
	}
	if ids.Valid(string(deviceID)) {
		return true
	}
	if c.identity == nil {
		return false
	}
	grade, err := c.identity.PermissionGrade(context.Background(), c.user.UserID, deviceID)
	if err != nil {
		return false
	}
	return grade.Meets(identity.GradeR)
}

func (c *Client) handleUnregister(deviceID devicegw.DeviceID) {
	c.stopForwarder(deviceID)
	c.store.UnregisterClient(deviceID, c.id)
}

// handleDeviceEvent implements spec §4.8 "device_event handling": commands route through the
// manager, everything else is stored (and thereby broadcast) via the event store.
func (c *Client) handleDeviceEvent(deviceID devicegw.DeviceID, events []devicegw.Event) {
	c.mu.Lock()
	_, registered := c.subs[deviceID]
	c.mu.Unlock()
	if !registered {
		c.writeJSON(OutboundError{Type: "error", DeviceID: deviceID, Reason: "not registered for device"})
		return
	}

	for _, ev := range events {
		if ev.Kind == devicegw.EventDeviceCommand && ev.DeviceCommand != nil {
			if err := c.manager.SendCommand(deviceID, *ev.DeviceCommand); err != nil {
				c.writeJSON(OutboundError{Type: "error", DeviceID: deviceID, Reason: err.Error()})
			}
			continue
		}
		if _, err := c.store.AddEvent(deviceID, ev, c.user.UserID, c.id); err != nil {
			c.writeJSON(OutboundError{Type: "error", DeviceID: deviceID, Reason: err.Error()})
		}
	}
}

func (c *Client) startForwarder(deviceID devicegw.DeviceID, sub *eventstore.Subscriber) {
	c.mu.Lock()
	if _, exists := c.subs[deviceID]; exists {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.subs[deviceID] = stop
	c.mu.Unlock()

	go func() {
		for {
			select {
			case rec, ok := <-sub.Send:
				if !ok {
					return
				}
				c.writeJSON(OutboundBatch{DeviceID: deviceID, EventsForDevice: []devicegw.EventRecord{rec}})
			case <-sub.Done:
				return
			case <-stop:
				return
			case <-c.done:
				return
			}
		}
	}()
}

func (c *Client) stopForwarder(deviceID devicegw.DeviceID) {
	c.mu.Lock()
	stop, ok := c.subs[deviceID]
	delete(c.subs, deviceID)
	c.mu.Unlock()
	if ok {
		close(stop)
	}
}

// close implements spec §4.8 "Close": unregister the client from every device it registered for.
func (c *Client) close() {
	close(c.done)

	c.mu.Lock()
	devices := make([]devicegw.DeviceID, 0, len(c.subs))
	for d := range c.subs {
		devices = append(devices, d)
	}
	c.mu.Unlock()

	for _, d := range devices {
		c.stopForwarder(d)
		c.store.UnregisterClient(d, c.id)
	}
	_ = c.conn.Close()
}
