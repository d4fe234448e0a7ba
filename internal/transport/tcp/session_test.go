package tcp_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/transport/tcp"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func TestSessionConnectAndReceiveFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		accepted <- conn
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	frames := make(chan []byte, 4)
	statuses := make(chan bool, 4)

	port, err2 := strconv.Atoi(portStr)
	require.NoError(t, err2)
	s := tcp.NewSession(testLogger(), "AA-BB-CC-DD-EE-01", "127.0.0.1", port, 2*time.Second, 50*time.Millisecond,
		func(f []byte) { frames <- f },
		func(connected bool) { statuses <- connected })

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, devicegw.Connected, s.State())

	select {
	case ok := <-statuses:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connect status")
	}

	conn := <-accepted
	_, err = conn.Write([]byte(`{"status":{"ok":true}}`))
	require.NoError(t, err)

	select {
	case f := <-frames:
		assert.Equal(t, `{"status":{"ok":true}}`, string(f))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}

	s.Disconnect()
	select {
	case ok := <-statuses:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for disconnect status")
	}
}

func TestSessionResetTransitionsToConnectingWithoutDisconnectStatus(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		accepted <- conn
	}()

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, err2 := strconv.Atoi(portStr)
	require.NoError(t, err2)

	statuses := make(chan bool, 4)
	s := tcp.NewSession(testLogger(), "AA-BB-CC-DD-EE-01", "127.0.0.1", port, 2*time.Second, 50*time.Millisecond,
		func([]byte) {}, func(connected bool) { statuses <- connected })

	require.NoError(t, s.Connect(context.Background()))
	<-accepted
	<-statuses // connected

	require.NoError(t, s.Send(devicegw.DeviceCommand{Reset: true}))
	assert.Equal(t, devicegw.Connecting, s.State())

	select {
	case <-statuses:
		t.Fatal("reset must not emit a disconnect status")
	case <-time.After(200 * time.Millisecond):
	}
}
