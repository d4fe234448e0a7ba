package eventstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/fleetbridge/devicegw"
)

// RegisterClient attaches a new (client_id, device_id) subscription (spec §4.7): an existing
// registration for the same client_id is replaced first, then a same-user reconnection reuses its
// prior color and emits a USER_COUNT_REFRESH presence event instead of a genuine UserJoined. The
// caller receives a replay snapshot to deliver to the attaching client.
func (st *Store) RegisterClient(deviceID devicegw.DeviceID, clientID, userID, displayName string, kind devicegw.SubscriptionKind) ([]devicegw.EventRecord, error) {
	st.subsMu.Lock()
	list := removeByClientID(st.subscribers[deviceID], clientID)

	reconnect, color := findReconnection(list, userID)
	if !reconnect {
		color = assignColor(userID, colorsInUse(list))
	}

	sub := &Subscriber{
		ClientID:    clientID,
		DeviceID:    deviceID,
		UserID:      userID,
		DisplayName: displayName,
		UserColor:   color,
		Kind:        kind,
		Send:        make(chan devicegw.EventRecord, subscriberBuffer),
		Done:        make(chan struct{}),
	}
	st.subscribers[deviceID] = append(list, sub)
	st.subsMu.Unlock()

	presence := devicegw.UserPresence{UserID: userID, DisplayName: displayName, UserColor: color}
	originUser := userID
	if reconnect {
		presence = devicegw.UserPresence{UserID: devicegw.UserCountRefresh}
		originUser = devicegw.UserCountRefresh
	}
	event := devicegw.Event{Kind: devicegw.EventUserJoined, UserJoined: &presence}
	st.broadcastPresence(deviceID, event, originUser, clientID)

	return st.Replay(deviceID), nil
}

// UnregisterClient detaches a (client_id, device_id) subscription (spec §4.7, §4.8 Close). If no
// other connection for the same user remains on this device, a genuine UserLeft is broadcast;
// otherwise a USER_COUNT_REFRESH is broadcast so the remaining viewers' counts stay accurate.
func (st *Store) UnregisterClient(deviceID devicegw.DeviceID, clientID string) {
	st.subsMu.Lock()
	list := st.subscribers[deviceID]
	var removed *Subscriber
	kept := make([]*Subscriber, 0, len(list))
	for _, s := range list {
		if s.ClientID == clientID {
			removed = s
			continue
		}
		kept = append(kept, s)
	}
	if removed == nil {
		st.subsMu.Unlock()
		return
	}
	if len(kept) == 0 {
		delete(st.subscribers, deviceID)
	} else {
		st.subscribers[deviceID] = kept
	}
	userStillPresent := false
	for _, s := range kept {
		if s.UserID == removed.UserID {
			userStillPresent = true
			break
		}
	}
	st.subsMu.Unlock()

	close(removed.Done)

	if userStillPresent {
		refresh := devicegw.UserPresence{UserID: devicegw.UserCountRefresh}
		event := devicegw.Event{Kind: devicegw.EventUserLeft, UserLeft: &refresh}
		st.broadcastPresence(deviceID, event, devicegw.UserCountRefresh, clientID)
		return
	}
	presence := devicegw.UserPresence{UserID: removed.UserID, DisplayName: removed.DisplayName, UserColor: removed.UserColor}
	event := devicegw.Event{Kind: devicegw.EventUserLeft, UserLeft: &presence}
	st.broadcastPresence(deviceID, event, removed.UserID, clientID)
}

// CleanupStale drops subscribers whose Done channel was closed without a matching
// UnregisterClient call, a safety net for connections that vanished uncleanly.
func (st *Store) CleanupStale() {
	st.subsMu.Lock()
	defer st.subsMu.Unlock()
	for deviceID, list := range st.subscribers {
		kept := list[:0]
		for _, s := range list {
			if !s.isStale() {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(st.subscribers, deviceID)
		} else {
			st.subscribers[deviceID] = kept
		}
	}
}

// broadcastPresence is AddEvent's broadcast-only counterpart for UserJoined/UserLeft: these
// presence notifications are delivered live but not retained in the per-device event history,
// since they describe viewer presence rather than device state (see DESIGN.md).
func (st *Store) broadcastPresence(deviceID devicegw.DeviceID, event devicegw.Event, originUserID, originClientID string) {
	record := devicegw.EventRecord{
		Event: event,
		EventMetadata: devicegw.EventMetadata{
			EventID:      uuid.NewString(),
			EpochMillis:  time.Now().UnixMilli(),
			OriginUserID: originUserID,
			OriginClient: originClientID,
		},
	}
	st.subsMu.RLock()
	snapshot := append([]*Subscriber(nil), st.subscribers[deviceID]...)
	st.subsMu.RUnlock()

	for _, sub := range snapshot {
		if sub.ClientID == originClientID {
			continue
		}
		if sub.Kind == devicegw.Light {
			continue
		}
		select {
		case sub.Send <- record:
		case <-sub.Done:
		}
	}
}

func removeByClientID(list []*Subscriber, clientID string) []*Subscriber {
	out := make([]*Subscriber, 0, len(list))
	for _, s := range list {
		if s.ClientID != clientID {
			out = append(out, s)
		}
	}
	return out
}

func findReconnection(list []*Subscriber, userID string) (bool, string) {
	for _, s := range list {
		if s.UserID == userID {
			return true, s.UserColor
		}
	}
	return false, ""
}

func colorsInUse(list []*Subscriber) map[string]bool {
	inUse := make(map[string]bool, len(list))
	for _, s := range list {
		inUse[s.UserColor] = true
	}
	return inUse
}
