// Package tcp implements the per-device TCP session (spec §4.3): a dial/reconnect state
// machine, a background reader applying the balanced-brace codec, and reset-is-success write
// semantics. Grounded on the teacher's runtime.BlizzardAdapter (runtime/blizzard_adapter.go): a
// mutex-guarded connection handle, a dedicated readLoop goroutine, and a reconnect-on-error path
// — generalized here from a JSON-RPC request/response adapter to a raw framed command/event
// session, and from "retry once on read error" to the spec's own reset/disconnect state machine.
package tcp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/codec"
)

// FrameHandler receives one complete decoded frame read from the device.
type FrameHandler func(frame []byte)

// StatusHandler is notified on every Connected/Disconnected edge the session itself drives
// (spec §4.3); the caller (internal/manager) is responsible for turning this into an event-store
// emission under the is_connected bookkeeping (spec §4.6).
type StatusHandler func(connected bool)

// Session owns one device's TCP connection, its receive accumulator, and its shutdown signal.
// Exactly one goroutine (the reader) other than the caller touches the connection at a time;
// state transitions and the connection handle are guarded by mu, and Send writes to the
// connection after releasing mu.
type Session struct {
	deviceID devicegw.DeviceID
	ip       string
	port     int

	dialTimeout time.Duration
	readPoll    time.Duration

	onFrame  FrameHandler
	onStatus StatusHandler
	log      *logrus.Entry

	mu    sync.Mutex
	conn  net.Conn
	state devicegw.ConnectionState
	acc   codec.TCPAccumulator

	shutdown chan struct{}
}

// NewSession constructs a Session in the Disconnected state. It does not dial until Connect is
// called.
func NewSession(log *logrus.Entry, deviceID devicegw.DeviceID, ip string, port int, dialTimeout, readPoll time.Duration, onFrame FrameHandler, onStatus StatusHandler) *Session {
	return &Session{
		deviceID:    deviceID,
		ip:          ip,
		port:        port,
		dialTimeout: dialTimeout,
		readPoll:    readPoll,
		onFrame:     onFrame,
		onStatus:    onStatus,
		log:         log.WithField("device_id", string(deviceID)),
		state:       devicegw.Disconnected,
	}
}

// State returns the session's current ConnectionState.
func (s *Session) State() devicegw.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the device's TCP port with a bounded timeout, enables TCP_NODELAY and
// keep-alive, and starts the background reader. On success the session transitions to
// Connected and fires the status handler with true.
func (s *Session) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: s.dialTimeout}
	addr := net.JoinHostPort(s.ip, strconv.Itoa(s.port))

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.mu.Lock()
		s.state = devicegw.Failed
		s.mu.Unlock()
		return &devicegw.ConnectionFailedError{Reason: err.Error()}
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(60 * time.Second)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = devicegw.Connected
	s.acc = codec.TCPAccumulator{}
	shutdown := make(chan struct{})
	s.shutdown = shutdown
	s.mu.Unlock()

	go s.readLoop(conn, shutdown)

	if s.onStatus != nil {
		s.onStatus(true)
	}
	return nil
}

// Send encodes and writes a command. Reset is special (spec §4.3): write/flush errors on a reset
// are treated as success since the device will have already closed the socket by design; the
// session transitions to Connecting (not Disconnected) so it survives for the peer's re-attach,
// and no disconnect status is emitted.
func (s *Session) Send(cmd devicegw.DeviceCommand) error {
	payload, err := codec.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		if err := s.Connect(context.Background()); err != nil {
			return err
		}
		s.mu.Lock()
		conn = s.conn
		s.mu.Unlock()
	}

	_, writeErr := conn.Write(payload)

	if cmd.Reset {
		s.mu.Lock()
		if s.shutdown != nil {
			close(s.shutdown)
			s.shutdown = nil
		}
		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
		s.state = devicegw.Connecting
		s.mu.Unlock()
		return nil
	}

	if writeErr != nil {
		return &devicegw.IOError{Reason: writeErr.Error()}
	}
	return nil
}

// Disconnect closes the socket, stops the reader, and fires the status handler with false.
func (s *Session) Disconnect() {
	s.mu.Lock()
	shutdown := s.shutdown
	conn := s.conn
	s.conn = nil
	s.state = devicegw.Disconnected
	s.mu.Unlock()

	if shutdown != nil {
		close(shutdown)
	}
	if conn != nil {
		_ = conn.Close()
	}
	if s.onStatus != nil {
		s.onStatus(false)
	}
}

func (s *Session) readLoop(conn net.Conn, shutdown chan struct{}) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.readPoll))
		n, err := conn.Read(buf)
		if n > 0 {
			frames, invalid := s.acc.Feed(buf[:n])
			if invalid > 0 {
				s.log.WithField("invalid_frames", invalid).Warn("dropped invalid UTF-8 frame")
			}
			for _, f := range frames {
				if s.onFrame != nil {
					s.onFrame([]byte(f))
				}
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-shutdown:
				// conn was closed as part of a reset (Send), not a real disconnect; exit quietly.
				return
			default:
			}
			s.log.WithError(err).Debug("tcp read error, session disconnecting")
			s.Disconnect()
			return
		}
	}
}
