// Package devicegw implements the device connectivity and event-fan-out core of a real-time
// gateway between a fleet of embedded edge nodes and a set of browser subscribers: discovery
// (internal/discovery), per-transport sessions (internal/transport/*), the device registry and
// message router (internal/manager), the bounded per-device event history and subscriber
// registry (internal/eventstore), and the duplex subscriber protocol (internal/channel).
//
// User accounts, permission checks, and persistent metadata storage are deliberately external:
// this module only defines the collaborator interfaces it calls out to (identity.Identity in
// internal/identity, metadata.Store in internal/metadata).
package devicegw

import "time"

// DeviceID is the opaque identifier used across every component. Canonical form for
// network-attached devices is MAC-dash (17 chars); serial-attached nodes self-report an
// identifier in their frames; System is reserved for discovery events not scoped to one device.
type DeviceID string

// Source identifies which transport a DeviceConfig is reachable over.
type Source int

const (
	SourceTCP Source = iota
	SourceUDP
	SourceUART
)

func (s Source) String() string {
	switch s {
	case SourceTCP:
		return "tcp"
	case SourceUDP:
		return "udp"
	case SourceUART:
		return "uart"
	default:
		return "unknown"
	}
}

// DeviceConfig describes how to reach one device. IP and the two ports are meaningless for
// SourceUART.
type DeviceConfig struct {
	DeviceID        DeviceID
	Source          Source
	UDPMac          string // set when Source == SourceUDP: the MAC the UDP sender is expected to report
	IP              string
	TCPPort         int
	UDPPort         int
	LivenessTimeout time.Duration
	AutoStartOption string
}

// ConnectionState is the per-device connection lifecycle (spec §3). A reset transitions
// Connected -> Connecting, never Connected -> Disconnected, so the session survives for the
// peer's re-attach.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectionType is set once per device on first-seen frame and never changes thereafter
// (spec §3 invariant: "at most one ConnectionType per device once set").
type ConnectionType int

const (
	ConnTypeUnset ConnectionType = iota
	ConnTypeTCPUDP
	ConnTypeUART
)

// SubscriptionKind is the per-(client,device) filter applied to outbound events (spec §3, §4.8).
type SubscriptionKind int

const (
	Light SubscriptionKind = iota
	Full
)

func (k SubscriptionKind) String() string {
	if k == Light {
		return "light"
	}
	return "full"
}

// EventKind tags the Event union (spec §3).
type EventKind string

const (
	EventDeviceCommand       EventKind = "deviceCommand"
	EventDeviceStatusUpdate  EventKind = "deviceStatusUpdate"
	EventVariableUpdate      EventKind = "variableUpdate"
	EventStartOptions        EventKind = "startOptions"
	EventChangeableVariables EventKind = "changeableVariables"
	EventRawBroadcast        EventKind = "rawBroadcast"
	EventConnectionStatus    EventKind = "connectionStatus"
	EventDeviceInfo          EventKind = "deviceInfo"
	EventDeviceDiscovered    EventKind = "deviceDiscovered"
	EventUserJoined          EventKind = "userJoined"
	EventUserLeft            EventKind = "userLeft"
)

// UserCountRefresh is the sentinel user_id carried by a UserJoined or UserLeft event that
// represents a presence-count recompute rather than a genuine arrival or departure (spec §4.7).
const UserCountRefresh = "USER_COUNT_REFRESH"

// ChangeableVariable describes one entry of a ChangeableVariables event.
type ChangeableVariable struct {
	Name  string  `json:"name"`
	Value uint64  `json:"value"`
	Min   *uint64 `json:"min,omitempty"`
	Max   *uint64 `json:"max,omitempty"`
}

// Event is a tagged union over every event kind the gateway produces or accepts from a
// subscriber. Exactly one payload field is populated, selected by Kind.
type Event struct {
	Kind EventKind `json:"type"`

	DeviceCommand       *DeviceCommand       `json:"deviceCommand,omitempty"`
	DeviceStatusUpdate  *DeviceStatusUpdate  `json:"deviceStatusUpdate,omitempty"`
	VariableUpdate      *VariableUpdate      `json:"variableUpdate,omitempty"`
	StartOptions        *StartOptions        `json:"startOptions,omitempty"`
	ChangeableVariables *ChangeableVariables `json:"changeableVariables,omitempty"`
	RawBroadcast        *RawBroadcast        `json:"rawBroadcast,omitempty"`
	ConnectionStatus    *ConnectionStatus    `json:"connectionStatus,omitempty"`
	DeviceInfo          *DeviceInfo          `json:"deviceInfo,omitempty"`
	DeviceDiscovered    *DeviceDiscovered    `json:"deviceDiscovered,omitempty"`
	UserJoined          *UserPresence        `json:"userJoined,omitempty"`
	UserLeft            *UserPresence        `json:"userLeft,omitempty"`
}

type DeviceCommand struct {
	SetVariable *struct {
		Name  string `json:"name"`
		Value uint32 `json:"value"`
	} `json:"setVariable,omitempty"`
	StartOption *string `json:"startOption,omitempty"`
	Reset       bool    `json:"reset,omitempty"`
	GetStatus   bool    `json:"getStatus,omitempty"`
}

type DeviceStatusUpdate struct {
	Status map[string]interface{} `json:"status"`
}

type VariableUpdate struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
	Min   *uint64     `json:"min,omitempty"`
	Max   *uint64     `json:"max,omitempty"`
}

type StartOptions struct {
	List []string `json:"list"`
}

type ChangeableVariables struct {
	List []ChangeableVariable `json:"list"`
}

type RawBroadcast struct {
	Text     string `json:"text"`
	FromIP   string `json:"fromIp"`
	FromPort int    `json:"fromPort"`
}

type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	DeviceIP  string `json:"deviceIp,omitempty"`
	TCPPort   int    `json:"tcpPort,omitempty"`
	UDPPort   int    `json:"udpPort,omitempty"`
}

type DeviceInfo struct {
	Name     *string `json:"name,omitempty"`
	Firmware *string `json:"firmware,omitempty"`
	Uptime   *uint64 `json:"uptime,omitempty"`
}

type DeviceDiscovered struct {
	IP           string    `json:"ip"`
	TCPPort      int       `json:"tcpPort"`
	UDPPort      int       `json:"udpPort"`
	DiscoveredAt time.Time `json:"discoveredAt"`
	MAC          *string   `json:"mac,omitempty"`
	Hostname     *string   `json:"hostname,omitempty"`
}

type UserPresence struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	UserColor   string `json:"userColor,omitempty"`
}

// EventMetadata is attached to every stored event (spec §3).
type EventMetadata struct {
	EventID      string `json:"eventId"`
	EpochMillis  int64  `json:"epochMillis"`
	OriginUserID string `json:"originUserId"`
	OriginClient string `json:"-"`
}

// EventRecord is an Event as retained in the per-device history and delivered on replay.
type EventRecord struct {
	Event
	EventMetadata
}
