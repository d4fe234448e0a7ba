package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/codec"
)

func TestParseInboundStartOptions(t *testing.T) {
	events, err := codec.ParseInbound([]byte(`{"startOptions":["a","b"]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, devicegw.EventStartOptions, events[0].Kind)
	assert.Equal(t, []string{"a", "b"}, events[0].StartOptions.List)
}

func TestParseInboundChangeableVariables(t *testing.T) {
	events, err := codec.ParseInbound([]byte(`{"changeableVariables":[{"name":"speed","value":10,"min":0,"max":100}]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, devicegw.EventChangeableVariables, events[0].Kind)
	require.Len(t, events[0].ChangeableVariables.List, 1)
	cv := events[0].ChangeableVariables.List[0]
	assert.Equal(t, "speed", cv.Name)
	assert.Equal(t, uint64(10), cv.Value)
	require.NotNil(t, cv.Min)
	assert.Equal(t, uint64(0), *cv.Min)
}

func TestParseInboundDeviceInfo(t *testing.T) {
	events, err := codec.ParseInbound([]byte(`{"deviceName":"kiln-1","firmwareVersion":"1.2.3","uptime":900}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, devicegw.EventDeviceInfo, events[0].Kind)
	require.NotNil(t, events[0].DeviceInfo.Name)
	assert.Equal(t, "kiln-1", *events[0].DeviceInfo.Name)
}

func TestParseInboundStatus(t *testing.T) {
	events, err := codec.ParseInbound([]byte(`{"status":{"heaterOn":true,"tempC":212}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, devicegw.EventDeviceStatusUpdate, events[0].Kind)
	assert.Equal(t, true, events[0].DeviceStatusUpdate.Status["heaterOn"])
}

func TestParseInboundSingleVariableUpdate(t *testing.T) {
	events, err := codec.ParseInbound([]byte(`{"temperature":72.5,"min":0,"max":200}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, devicegw.EventVariableUpdate, events[0].Kind)
	assert.Equal(t, "temperature", events[0].VariableUpdate.Name)
	assert.Equal(t, 72.5, events[0].VariableUpdate.Value)
	require.NotNil(t, events[0].VariableUpdate.Max)
	assert.Equal(t, uint64(200), *events[0].VariableUpdate.Max)
}

func TestParseInboundIgnoresReservedKeysForSingleUpdate(t *testing.T) {
	events, err := codec.ParseInbound([]byte(`{"device_id":"AA-BB-CC-DD-EE-01","status":{"ok":true}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, devicegw.EventDeviceStatusUpdate, events[0].Kind)
}

func TestParseInboundRejectsInvalidJSON(t *testing.T) {
	events, err := codec.ParseInbound([]byte(`not-quite-json but matches`))
	require.Error(t, err)
	assert.Nil(t, events)
}

func TestParseInboundSingleKeyNonReserved(t *testing.T) {
	events, err := codec.ParseInbound([]byte(`{"label":"ready"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, devicegw.EventVariableUpdate, events[0].Kind)
	assert.Equal(t, "label", events[0].VariableUpdate.Name)
	assert.Equal(t, "ready", events[0].VariableUpdate.Value)
}

func TestParseInboundRegexFallbackWhenOnlyReservedKeyPresent(t *testing.T) {
	// device_id alone carries no structured schema and is excluded from the single-variable-
	// update pass as a reserved key, so the regex fallback is what actually produces an event.
	events, err := codec.ParseInbound([]byte(`{"device_id":"AA-BB-CC-DD-EE-01"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, devicegw.EventVariableUpdate, events[0].Kind)
	assert.Equal(t, "device_id", events[0].VariableUpdate.Name)
	assert.Equal(t, "AA-BB-CC-DD-EE-01", events[0].VariableUpdate.Value)
}
