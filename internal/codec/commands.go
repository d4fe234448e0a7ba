package codec

import (
	"encoding/json"
	"fmt"

	"github.com/fleetbridge/devicegw"
)

// wireCommand mirrors the four outbound command JSON schemas from spec §4.1. At most one field
// is populated per encode; DecodeCommand rejects a frame matching zero or more than one.
type wireCommand struct {
	SetVariable *wireSetVariable `json:"setVariable,omitempty"`
	StartOption *string          `json:"startOption,omitempty"`
	Reset       *bool            `json:"reset,omitempty"`
	GetStatus   *bool            `json:"getStatus,omitempty"`
}

type wireSetVariable struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

// EncodeCommand serialises a DeviceCommand into the wire JSON a session writes to a device.
func EncodeCommand(cmd devicegw.DeviceCommand) ([]byte, error) {
	w, err := toWireCommand(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWireCommand(cmd devicegw.DeviceCommand) (wireCommand, error) {
	set := 0
	var w wireCommand
	if cmd.SetVariable != nil {
		w.SetVariable = &wireSetVariable{Name: cmd.SetVariable.Name, Value: cmd.SetVariable.Value}
		set++
	}
	if cmd.StartOption != nil {
		w.StartOption = cmd.StartOption
		set++
	}
	if cmd.Reset {
		t := true
		w.Reset = &t
		set++
	}
	if cmd.GetStatus {
		t := true
		w.GetStatus = &t
		set++
	}
	if set != 1 {
		return wireCommand{}, &devicegw.InvalidCommandError{Reason: fmt.Sprintf("exactly one command field must be set, got %d", set)}
	}
	return w, nil
}

// DecodeCommand parses a command frame as written by EncodeCommand (or a subscriber's
// deviceEvent payload) back into a DeviceCommand.
func DecodeCommand(data []byte) (devicegw.DeviceCommand, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return devicegw.DeviceCommand{}, &devicegw.CodecError{Reason: err.Error()}
	}
	var out devicegw.DeviceCommand
	set := 0
	if w.SetVariable != nil {
		out.SetVariable = &struct {
			Name  string `json:"name"`
			Value uint32 `json:"value"`
		}{Name: w.SetVariable.Name, Value: w.SetVariable.Value}
		set++
	}
	if w.StartOption != nil {
		out.StartOption = w.StartOption
		set++
	}
	if w.Reset != nil && *w.Reset {
		out.Reset = true
		set++
	}
	if w.GetStatus != nil && *w.GetStatus {
		out.GetStatus = true
		set++
	}
	if set != 1 {
		return devicegw.DeviceCommand{}, &devicegw.InvalidCommandError{Reason: fmt.Sprintf("exactly one command field must be set, got %d", set)}
	}
	return out, nil
}

// InjectDeviceID embeds the target device id into an already-encoded command frame, as the
// serial writer must do before framing it with STX/ETX (spec §4.5).
func InjectDeviceID(frame []byte, deviceID devicegw.DeviceID) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(frame, &m); err != nil {
		return nil, &devicegw.CodecError{Reason: err.Error()}
	}
	idJSON, err := json.Marshal(string(deviceID))
	if err != nil {
		return nil, err
	}
	m["device_id"] = idJSON
	return json.Marshal(m)
}
