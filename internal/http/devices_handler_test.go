package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/eventstore"
	"github.com/fleetbridge/devicegw/internal/manager"
)

func testManager(t *testing.T) *manager.Manager {
	t.Helper()
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	log := logrus.NewEntry(l)
	opts := devicegw.DefaultGatewayOptions()
	store := eventstore.NewStore(log, opts.RawBroadcastCap)
	return manager.New(log, opts, store, nil, nil)
}

func TestDevicesHandlerEmpty(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/devices", nil)
	DevicesHandler(testManager(t))(rr, req)

	require.Equal(t, 200, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))

	var body struct {
		Devices []DeviceInfo `json:"devices"`
		Count   int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Count)
	assert.Empty(t, body.Devices)
}

func TestDevicesHandlerReflectsRegisteredDevices(t *testing.T) {
	mgr := testManager(t)
	mgr.AddDevice(devicegw.DeviceConfig{DeviceID: "AA-BB-CC-DD-EE-01", Source: devicegw.SourceTCP, IP: "10.0.0.5", TCPPort: 3232})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/devices", nil)
	DevicesHandler(mgr)(rr, req)

	var body struct {
		Devices []DeviceInfo `json:"devices"`
		Count   int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "AA-BB-CC-DD-EE-01", body.Devices[0].ID)
	assert.Equal(t, "tcp/udp", body.Devices[0].ConnectionType)
	assert.False(t, body.Devices[0].Connected)
}
