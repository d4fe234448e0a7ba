package manager

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/eventstore"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	opts := devicegw.DefaultGatewayOptions()
	store := eventstore.NewStore(logrus.NewEntry(l), opts.RawBroadcastCap)
	return New(logrus.NewEntry(l), opts, store, nil, nil)
}

func TestAddDeviceIsIdempotentOnConnectionType(t *testing.T) {
	m := testManager(t)
	id := devicegw.DeviceID("AA-BB-CC-DD-EE-01")

	m.AddDevice(devicegw.DeviceConfig{DeviceID: id, Source: devicegw.SourceTCP, IP: "10.0.0.5", TCPPort: 3232})
	ct, ok := m.ConnectionType(id)
	require.True(t, ok)
	assert.Equal(t, devicegw.ConnTypeTCPUDP, ct)

	// a repeat AddDevice with a different Source must not retype an already-typed device
	m.AddDevice(devicegw.DeviceConfig{DeviceID: id, Source: devicegw.SourceUART, IP: "10.0.0.6"})
	ct, ok = m.ConnectionType(id)
	require.True(t, ok)
	assert.Equal(t, devicegw.ConnTypeTCPUDP, ct)
	assert.Equal(t, "10.0.0.6", m.configs[id].IP, "config itself should still update on repeat AddDevice")
}

func TestSendCommandUnknownDeviceIsNotFound(t *testing.T) {
	m := testManager(t)
	err := m.SendCommand("unknown", devicegw.DeviceCommand{GetStatus: true})
	require.Error(t, err)
	var notFound *devicegw.DeviceNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSendCommandTCPDeviceWithoutSessionIsNotFound(t *testing.T) {
	m := testManager(t)
	id := devicegw.DeviceID("AA-BB-CC-DD-EE-02")
	m.AddDevice(devicegw.DeviceConfig{DeviceID: id, Source: devicegw.SourceTCP, IP: "10.0.0.5", TCPPort: 3232})

	err := m.SendCommand(id, devicegw.DeviceCommand{GetStatus: true})
	require.Error(t, err)
	var notFound *devicegw.DeviceNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestIngestSerialAutoRegistersUnknownDeviceAndParsesEvent(t *testing.T) {
	m := testManager(t)
	id := devicegw.DeviceID("node-42")

	m.IngestSerial(id, []byte(`{"deviceName":"pump-1"}`))

	ct, ok := m.ConnectionType(id)
	require.True(t, ok)
	assert.Equal(t, devicegw.ConnTypeUART, ct)
	assert.True(t, m.IsConnected(id), "first frame from a device should flip is_connected")

	replay := m.store.Replay(id)
	var sawRaw, sawInfo, sawStatus bool
	for _, r := range replay {
		switch r.Kind {
		case devicegw.EventRawBroadcast:
			sawRaw = true
		case devicegw.EventDeviceInfo:
			sawInfo = true
		case devicegw.EventConnectionStatus:
			sawStatus = true
		}
	}
	assert.True(t, sawRaw, "expected a rawBroadcast for every ingested frame")
	assert.True(t, sawInfo, "expected the deviceName frame to parse into a deviceInfo event")
	assert.True(t, sawStatus, "expected a connectionStatus on first sight of the device")
}

func TestIngestDoesNotReemitConnectionStatusOnSubsequentFrames(t *testing.T) {
	m := testManager(t)
	id := devicegw.DeviceID("node-43")

	m.IngestSerial(id, []byte(`{"deviceName":"pump-1"}`))
	m.IngestSerial(id, []byte(`{"deviceName":"pump-1-renamed"}`))

	replay := m.store.Replay(id)
	statusCount := 0
	for _, r := range replay {
		if r.Kind == devicegw.EventConnectionStatus {
			statusCount++
		}
	}
	assert.Equal(t, 1, statusCount, "is_connected is edge-triggered: only the first frame should emit a status")
}

func TestCheckLivenessEvictsStaleUDPDeviceAndEmitsDisconnect(t *testing.T) {
	m := testManager(t)
	id := devicegw.DeviceID("AA-BB-CC-DD-EE-03")
	m.AddDevice(devicegw.DeviceConfig{DeviceID: id, Source: devicegw.SourceUDP, IP: "10.0.0.9", LivenessTimeout: 10 * time.Millisecond})

	m.mu.Lock()
	m.lastSeen[id] = time.Now().Add(-1 * time.Second)
	m.isConnected[id] = true
	m.mu.Unlock()

	m.checkLiveness()

	assert.False(t, m.IsConnected(id))
	m.mu.Lock()
	_, stillTracked := m.lastSeen[id]
	m.mu.Unlock()
	assert.False(t, stillTracked, "last_seen entry should be evicted to prevent repeat notifications")

	replay := m.store.Replay(id)
	require.NotEmpty(t, replay)
	last := replay[len(replay)-1]
	require.Equal(t, devicegw.EventConnectionStatus, last.Kind)
	assert.False(t, last.ConnectionStatus.Connected)
}

func TestCheckLivenessAutoInsertsConfigForOrphanedUARTLastSeen(t *testing.T) {
	m := testManager(t)
	id := devicegw.DeviceID("orphan-uart")

	m.mu.Lock()
	m.lastSeen[id] = time.Now().Add(-1 * time.Hour)
	m.isConnected[id] = true
	m.mu.Unlock()

	m.checkLiveness()

	_, ok := m.config(id)
	assert.True(t, ok, "an orphaned last_seen entry should get a default config before the liveness check")
	assert.False(t, m.IsConnected(id))
}
