package channel

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/eventstore"
	"github.com/fleetbridge/devicegw/internal/manager"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	log := logrus.NewEntry(l)
	opts := devicegw.DefaultGatewayOptions()
	store := eventstore.NewStore(log, opts.RawBroadcastCap)
	mgr := manager.New(log, opts, store, nil, nil)
	return NewHandler(mgr, store, nil, nil, log)
}

func dialChannel(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestChannelPingReceivesPong(t *testing.T) {
	server := httptest.NewServer(testHandler(t))
	defer server.Close()
	conn := dialChannel(t, server)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: TypePing, Timestamp: uint64Ptr(42)}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong OutboundPong
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, TypePong, pong.Type)
	require.NotNil(t, pong.Timestamp)
	require.EqualValues(t, 42, *pong.Timestamp)
}

func TestChannelRegisterLightForUnknownDeviceEmitsDisconnectedSnapshot(t *testing.T) {
	server := httptest.NewServer(testHandler(t))
	defer server.Close()
	conn := dialChannel(t, server)

	require.NoError(t, conn.WriteJSON(InboundMessage{
		Type:             TypeRegisterForDevice,
		DeviceID:         "AA-BB-CC-DD-EE-99",
		SubscriptionType: "light",
	}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var batch map[string]interface{}
	require.NoError(t, conn.ReadJSON(&batch))
	require.Equal(t, "AA-BB-CC-DD-EE-99", batch["deviceId"])
}

func uint64Ptr(v uint64) *uint64 { return &v }
