// Package serial implements the wired serial session (spec §4.5): open the configured port at
// the configured baud, apply STX/ETX framing, strip the mandatory top-level device_id field
// before ingress, and inject device_id into outgoing commands. Grounded on go.bug.st/serial, the
// only serial-port library appearing across the pack's manifests (confirmed in
// houneTeam-pible_go, iamruinous-meshtastic-message-relay, projectqai-hydris, rustyeddy-otto and
// toitlang-jaguar's go.mod files), and on other_examples/psnamericas-nectarcollector's
// capture/channel.go for its read-loop shape (generalized here from line-oriented
// RS-232 capture to STX/ETX JSON framing).
package serial

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	goserial "go.bug.st/serial"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/codec"
)

// DefaultBaud is the baud rate NewSession uses when it is given a non-positive baud
// (spec §4.5).
const DefaultBaud = 115200

// FrameHandler receives one payload already stripped of STX/ETX, with the mandatory device_id
// extracted and removed (spec §4.5: "the field is stripped before ingress").
type FrameHandler func(deviceID devicegw.DeviceID, payload []byte)

// Session owns one open serial port.
type Session struct {
	portName string
	baud     int
	readPoll time.Duration
	onFrame  FrameHandler
	log      *logrus.Entry

	port goserial.Port
}

// NewSession constructs a Session. Open must be called before Write or the reader starts.
func NewSession(log *logrus.Entry, portName string, baud int, readPoll time.Duration, onFrame FrameHandler) *Session {
	if baud <= 0 {
		baud = DefaultBaud
	}
	return &Session{
		portName: portName,
		baud:     baud,
		readPoll: readPoll,
		onFrame:  onFrame,
		log:      log.WithField("port", portName),
	}
}

// Open opens the serial port and starts the background reader. It returns once the port is open;
// the reader runs until ctx is cancelled or an I/O error occurs.
func (s *Session) Open(ctx context.Context) error {
	mode := &goserial.Mode{BaudRate: s.baud}
	port, err := goserial.Open(s.portName, mode)
	if err != nil {
		return &devicegw.ConnectionFailedError{Reason: err.Error()}
	}
	if err := port.SetReadTimeout(s.readPoll); err != nil {
		_ = port.Close()
		return &devicegw.ConnectionFailedError{Reason: err.Error()}
	}
	s.port = port

	go s.readLoop(ctx, port)
	return nil
}

// Close shuts down the port.
func (s *Session) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}

// Write injects deviceID into the command JSON and frames it with STX/ETX before writing (spec
// §4.5: "the writer ... injects the target device_id into the command JSON").
func (s *Session) Write(cmd devicegw.DeviceCommand, deviceID devicegw.DeviceID) error {
	encoded, err := codec.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	injected, err := codec.InjectDeviceID(encoded, deviceID)
	if err != nil {
		return err
	}

	framed := make([]byte, 0, len(injected)+2)
	framed = append(framed, 0x02)
	framed = append(framed, injected...)
	framed = append(framed, 0x03)

	_, err = s.port.Write(framed)
	if err != nil {
		return &devicegw.IOError{Reason: err.Error()}
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context, port goserial.Port) {
	var acc codec.SerialAccumulator
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			_ = port.Close()
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			s.log.WithError(err).Debug("serial read error, session disconnecting")
			_ = port.Close()
			return
		}
		if n == 0 {
			continue
		}

		for _, frame := range acc.Feed(buf[:n]) {
			deviceID, payload, ok := stripDeviceID(frame)
			if !ok {
				s.log.Warn("dropped serial frame missing device_id")
				continue
			}
			if s.onFrame != nil {
				s.onFrame(deviceID, payload)
			}
		}
	}
}

// stripDeviceID requires the mandatory top-level device_id field (spec §4.5), extracts it, and
// returns the frame with that field removed.
func stripDeviceID(frame []byte) (devicegw.DeviceID, []byte, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(frame, &m); err != nil {
		return "", nil, false
	}
	raw, ok := m["device_id"]
	if !ok {
		return "", nil, false
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", nil, false
	}
	delete(m, "device_id")

	stripped, err := json.Marshal(m)
	if err != nil {
		return "", nil, false
	}
	return devicegw.DeviceID(id), stripped, true
}
