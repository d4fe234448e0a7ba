// Package eventstore implements the per-device bounded event history and subscriber registry
// (spec §4.7): validated event append with RawBroadcast eviction, subscriber registration with
// deterministic color assignment and reconnection reuse, and filtered broadcast. Grounded on the
// teacher's general mutex-guarded-map style (runtime/device_adapter.go) generalized to the two
// reader-writer-locked maps and the events-before-subscribers lock ordering spec §5 requires.
package eventstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fleetbridge/devicegw"
)

// subscriberBuffer approximates the spec's "unbounded" subscriber channel (spec §5 Backpressure)
// with a generously sized buffer rather than an actually-unbounded queue; see DESIGN.md for the
// tradeoff this resolves.
const subscriberBuffer = 1024

// Subscriber is one (client_id, device_id) registration (spec §3 Subscription/ClientConnection).
type Subscriber struct {
	ClientID    string
	DeviceID    devicegw.DeviceID
	UserID      string
	DisplayName string
	UserColor   string
	Kind        devicegw.SubscriptionKind
	Send        chan devicegw.EventRecord
	Done        chan struct{}
}

func (s *Subscriber) isStale() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// Store holds events and subscribers keyed by device id, each behind its own reader-writer lock
// per spec §5, with the events lock always acquired and released before the subscribers lock.
type Store struct {
	log *logrus.Entry
	cap int

	eventsMu sync.RWMutex
	events   map[devicegw.DeviceID][]devicegw.EventRecord

	subsMu      sync.RWMutex
	subscribers map[devicegw.DeviceID][]*Subscriber
}

// NewStore constructs a Store with the given RawBroadcast retention cap (already clamped by the
// caller via devicegw.ClampRawBroadcastCap).
func NewStore(log *logrus.Entry, rawBroadcastCap int) *Store {
	return &Store{
		log:         log,
		cap:         rawBroadcastCap,
		events:      make(map[devicegw.DeviceID][]devicegw.EventRecord),
		subscribers: make(map[devicegw.DeviceID][]*Subscriber),
	}
}

// AddEvent validates, stores, and broadcasts one event for a device (spec §4.7). originClientID
// is excluded from the broadcast (a subscriber never receives its own origin); pass "" for
// gateway-originated events with no originating client.
func (st *Store) AddEvent(deviceID devicegw.DeviceID, event devicegw.Event, userID, originClientID string) (devicegw.EventRecord, error) {
	if err := validateEvent(event); err != nil {
		return devicegw.EventRecord{}, err
	}

	record := devicegw.EventRecord{
		Event: event,
		EventMetadata: devicegw.EventMetadata{
			EventID:      uuid.NewString(),
			EpochMillis:  time.Now().UnixMilli(),
			OriginUserID: userID,
			OriginClient: originClientID,
		},
	}

	st.eventsMu.Lock()
	list := st.events[deviceID]
	if event.Kind == devicegw.EventRawBroadcast {
		list = evictOldestRawBroadcastIfFull(list, st.cap)
	}
	st.events[deviceID] = append(list, record)
	st.eventsMu.Unlock()

	st.broadcast(deviceID, record, originClientID)
	return record, nil
}

// evictOldestRawBroadcastIfFull removes the oldest RawBroadcast entry when the device already
// holds cap RawBroadcast events, so the post-append count never exceeds cap (spec §3).
func evictOldestRawBroadcastIfFull(list []devicegw.EventRecord, cap int) []devicegw.EventRecord {
	count := 0
	for _, r := range list {
		if r.Kind == devicegw.EventRawBroadcast {
			count++
		}
	}
	if count < cap {
		return list
	}
	for i, r := range list {
		if r.Kind == devicegw.EventRawBroadcast {
			out := make([]devicegw.EventRecord, 0, len(list)-1)
			out = append(out, list[:i]...)
			out = append(out, list[i+1:]...)
			return out
		}
	}
	return list
}

func validateEvent(event devicegw.Event) error {
	switch event.Kind {
	case devicegw.EventDeviceCommand:
		if event.DeviceCommand == nil {
			return &devicegw.ValidationError{Reason: "deviceCommand event missing payload"}
		}
	case devicegw.EventDeviceStatusUpdate:
		if event.DeviceStatusUpdate == nil {
			return &devicegw.ValidationError{Reason: "deviceStatusUpdate event missing payload"}
		}
	case devicegw.EventVariableUpdate:
		if event.VariableUpdate == nil || event.VariableUpdate.Name == "" {
			return &devicegw.ValidationError{Reason: "variableUpdate event missing name"}
		}
	case devicegw.EventStartOptions:
		if event.StartOptions == nil {
			return &devicegw.ValidationError{Reason: "startOptions event missing payload"}
		}
	case devicegw.EventChangeableVariables:
		if event.ChangeableVariables == nil {
			return &devicegw.ValidationError{Reason: "changeableVariables event missing payload"}
		}
	case devicegw.EventRawBroadcast:
		if event.RawBroadcast == nil {
			return &devicegw.ValidationError{Reason: "rawBroadcast event missing payload"}
		}
	case devicegw.EventConnectionStatus:
		if event.ConnectionStatus == nil {
			return &devicegw.ValidationError{Reason: "connectionStatus event missing payload"}
		}
	case devicegw.EventDeviceInfo:
		if event.DeviceInfo == nil {
			return &devicegw.ValidationError{Reason: "deviceInfo event missing payload"}
		}
	case devicegw.EventDeviceDiscovered:
		if event.DeviceDiscovered == nil {
			return &devicegw.ValidationError{Reason: "deviceDiscovered event missing payload"}
		}
	case devicegw.EventUserJoined, devicegw.EventUserLeft:
		// presence events are validated below since both use UserJoined/UserLeft fields
	default:
		return &devicegw.ValidationError{Reason: "unknown event kind"}
	}
	if (event.Kind == devicegw.EventUserJoined && event.UserJoined == nil) ||
		(event.Kind == devicegw.EventUserLeft && event.UserLeft == nil) {
		return &devicegw.ValidationError{Reason: "presence event missing payload"}
	}
	return nil
}

// broadcast delivers record to every subscriber of deviceID except originClientID, applying the
// Light/Full filter (spec §4.7 step 4). No lock is held across the channel send (spec §5).
func (st *Store) broadcast(deviceID devicegw.DeviceID, record devicegw.EventRecord, originClientID string) {
	st.subsMu.RLock()
	snapshot := append([]*Subscriber(nil), st.subscribers[deviceID]...)
	st.subsMu.RUnlock()

	for _, sub := range snapshot {
		if sub.ClientID == originClientID {
			continue
		}
		if sub.Kind == devicegw.Light && record.Kind != devicegw.EventConnectionStatus {
			continue
		}
		select {
		case sub.Send <- record:
		case <-sub.Done:
		}
	}
}

// Subscriber returns the live registration for (deviceID, clientID), used by the subscriber
// channel to obtain the Send channel to forward from after RegisterClient succeeds.
func (st *Store) Subscriber(deviceID devicegw.DeviceID, clientID string) (*Subscriber, bool) {
	st.subsMu.RLock()
	defer st.subsMu.RUnlock()
	for _, s := range st.subscribers[deviceID] {
		if s.ClientID == clientID {
			return s, true
		}
	}
	return nil, false
}

// Replay returns a snapshot of the currently retained events for a device.
func (st *Store) Replay(deviceID devicegw.DeviceID) []devicegw.EventRecord {
	st.eventsMu.RLock()
	defer st.eventsMu.RUnlock()
	return append([]devicegw.EventRecord(nil), st.events[deviceID]...)
}
