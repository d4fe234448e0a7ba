package codec

import (
	"encoding/json"
	"regexp"

	"github.com/fleetbridge/devicegw"
)

// reservedKeys are the top-level JSON keys that belong to a structured schema (spec §4.1) and
// are therefore never eligible for the single-variable-update fallback.
var reservedKeys = map[string]bool{
	"startOptions":        true,
	"changeableVariables": true,
	"deviceName":          true,
	"firmwareVersion":     true,
	"uptime":              true,
	"status":              true,
	"device_id":           true,
}

type wireDeviceInfo struct {
	DeviceName      *string `json:"deviceName"`
	FirmwareVersion *string `json:"firmwareVersion,omitempty"`
	Uptime          *uint64 `json:"uptime,omitempty"`
}

// ParseInbound parses one inbound frame (already stripped of any framing bytes) into the
// structured events it supports, per spec §4.1: a single frame may produce more than one event,
// unknown keys are ignored, and partial matches still yield whatever they support. When the
// structured parse yields nothing, a regex fallback extracts a single `{"name":"value"}` or
// `{"name":N}` pair.
func ParseInbound(frame []byte) ([]devicegw.Event, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(frame, &generic); err != nil {
		return nil, &devicegw.CodecError{Reason: err.Error()}
	}

	var events []devicegw.Event

	if raw, ok := generic["startOptions"]; ok {
		var list []string
		if json.Unmarshal(raw, &list) == nil {
			events = append(events, devicegw.Event{
				Kind:         devicegw.EventStartOptions,
				StartOptions: &devicegw.StartOptions{List: list},
			})
		}
	}

	if raw, ok := generic["changeableVariables"]; ok {
		var list []devicegw.ChangeableVariable
		if json.Unmarshal(raw, &list) == nil {
			events = append(events, devicegw.Event{
				Kind:                devicegw.EventChangeableVariables,
				ChangeableVariables: &devicegw.ChangeableVariables{List: list},
			})
		}
	}

	if _, ok := generic["deviceName"]; ok {
		var w wireDeviceInfo
		if err := json.Unmarshal(frame, &w); err == nil {
			events = append(events, devicegw.Event{
				Kind: devicegw.EventDeviceInfo,
				DeviceInfo: &devicegw.DeviceInfo{
					Name:     w.DeviceName,
					Firmware: w.FirmwareVersion,
					Uptime:   w.Uptime,
				},
			})
		}
	}

	if raw, ok := generic["status"]; ok {
		var status map[string]interface{}
		if json.Unmarshal(raw, &status) == nil {
			events = append(events, devicegw.Event{
				Kind:               devicegw.EventDeviceStatusUpdate,
				DeviceStatusUpdate: &devicegw.DeviceStatusUpdate{Status: status},
			})
		}
	}

	if ev, ok := singleVariableUpdate(generic); ok {
		events = append(events, ev)
	}

	if len(events) == 0 {
		if ev, ok := regexFallback(frame); ok {
			events = append(events, ev)
		}
	}

	return events, nil
}

// singleVariableUpdate implements the "any {S:V} where S is not reserved" rule (spec §4.1). Only
// the first such key found is used; a frame carrying more than one is not a documented case.
func singleVariableUpdate(generic map[string]json.RawMessage) (devicegw.Event, bool) {
	minRaw, hasMin := generic["min"]
	maxRaw, hasMax := generic["max"]
	for key, raw := range generic {
		if reservedKeys[key] || key == "min" || key == "max" {
			continue
		}
		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		if !isPrimitive(value) {
			continue
		}
		update := &devicegw.VariableUpdate{Name: key, Value: value}
		if hasMin {
			if v, ok := parseUint64(minRaw); ok {
				update.Min = &v
			}
		}
		if hasMax {
			if v, ok := parseUint64(maxRaw); ok {
				update.Max = &v
			}
		}
		return devicegw.Event{Kind: devicegw.EventVariableUpdate, VariableUpdate: update}, true
	}
	return devicegw.Event{}, false
}

func isPrimitive(v interface{}) bool {
	switch v.(type) {
	case string, float64, bool, nil:
		return true
	default:
		return false
	}
}

func parseUint64(raw json.RawMessage) (uint64, bool) {
	var v uint64
	if json.Unmarshal(raw, &v) != nil {
		return 0, false
	}
	return v, true
}

var (
	fallbackString = regexp.MustCompile(`^\s*\{\s*"([^"]+)"\s*:\s*"([^"]*)"\s*\}\s*$`)
	fallbackNumber = regexp.MustCompile(`^\s*\{\s*"([^"]+)"\s*:\s*(-?[0-9]+(?:\.[0-9]+)?)\s*\}\s*$`)
)

// regexFallback extracts a {"name":"value"} or {"name":N} pair when the structured parse found
// nothing to emit (spec §4.1).
func regexFallback(frame []byte) (devicegw.Event, bool) {
	s := string(frame)
	if m := fallbackString.FindStringSubmatch(s); m != nil {
		return devicegw.Event{
			Kind:           devicegw.EventVariableUpdate,
			VariableUpdate: &devicegw.VariableUpdate{Name: m[1], Value: m[2]},
		}, true
	}
	if m := fallbackNumber.FindStringSubmatch(s); m != nil {
		var n float64
		if err := json.Unmarshal([]byte(m[2]), &n); err == nil {
			return devicegw.Event{
				Kind:           devicegw.EventVariableUpdate,
				VariableUpdate: &devicegw.VariableUpdate{Name: m[1], Value: n},
			}, true
		}
	}
	return devicegw.Event{}, false
}
