// Package channel implements the duplex subscriber protocol (spec §4.8): a persistent websocket
// per browser tab, multiplexing registrations across devices, replaying buffered history on
// attach, and forwarding live events. Grounded on
// other_examples/stepherg-blizzardgw's internal/ws-handler.go for the upgrade-then-run-goroutine
// shape, the pongWait/pingPeriod/writeWait keepalive constants, and the
// mutex-guarded-writeJSON/subscribe-then-forwarder-goroutine pattern, generalized from a single
// JSON-RPC dispatcher per connection to N device subscriptions multiplexed over one socket.
package channel

import (
	"encoding/json"

	"github.com/fleetbridge/devicegw"
)

// Message types (spec §6 External Interfaces); all are inbound except TypePong, the reply to
// TypePing.
const (
	TypeRegisterForDevice   = "registerForDevice"
	TypeUnregisterForDevice = "unregisterForDevice"
	TypeDeviceEvent         = "deviceEvent"
	TypePing                = "ping"
	TypePong                = "pong"
)

// InboundMessage is the generic envelope for every client-to-server message; only the fields
// relevant to Type are populated.
type InboundMessage struct {
	Type             string            `json:"type"`
	DeviceID         devicegw.DeviceID `json:"deviceId"`
	SubscriptionType string            `json:"subscriptionType"`
	EventsForDevice  []devicegw.Event  `json:"eventsForDevice"`
	Timestamp        *uint64           `json:"timestamp,omitempty"`
}

// OutboundBatch is the server-to-client event delivery; it intentionally carries no "type" field
// (spec §6: `{ "deviceId":S, "eventsForDevice":[EventWithMetadata…] }`).
type OutboundBatch struct {
	DeviceID        devicegw.DeviceID      `json:"deviceId"`
	EventsForDevice []devicegw.EventRecord `json:"eventsForDevice"`
}

// OutboundPong answers a ping, echoing its timestamp.
type OutboundPong struct {
	Type      string  `json:"type"`
	Timestamp *uint64 `json:"timestamp,omitempty"`
}

// OutboundError reports a failure attributable to this subscriber's own request (spec §7:
// "reported as an error event on the subscriber channel when the failure is attributable to that
// subscriber").
type OutboundError struct {
	Type     string            `json:"type"`
	DeviceID devicegw.DeviceID `json:"deviceId,omitempty"`
	Reason   string            `json:"reason"`
}

func newPong(ts *uint64) OutboundPong {
	return OutboundPong{Type: TypePong, Timestamp: ts}
}

func parseInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
