package metadata_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/metadata"
)

func TestInMemoryCRUD(t *testing.T) {
	s := metadata.NewInMemory(metadata.UARTSettings{Port: "/dev/ttyUSB0", Baud: 115200}, metadata.DebugSettings{MaxRawBroadcastEvents: 200})
	ctx := context.Background()

	_, err := s.GetDeviceConfig(ctx, "AA-BB-CC-DD-EE-01")
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	cfg := devicegw.DeviceConfig{DeviceID: "AA-BB-CC-DD-EE-01", Source: devicegw.SourceTCP, IP: "192.168.1.50", TCPPort: 3232, UDPPort: 3232}
	require.NoError(t, s.PutDeviceConfig(ctx, cfg))

	got, err := s.GetDeviceConfig(ctx, "AA-BB-CC-DD-EE-01")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	list, err := s.ListDeviceConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteDeviceConfig(ctx, "AA-BB-CC-DD-EE-01"))
	_, err = s.GetDeviceConfig(ctx, "AA-BB-CC-DD-EE-01")
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	uart, err := s.GetUARTSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 115200, uart.Baud)
}
