package devicegw

import "time"

// GatewayOptions carries the tunables spec §5 calls out as configurable: the raw-broadcast
// retention cap, per-transport liveness timeouts, and the background tick intervals. Adapted
// from the teacher's Options/DefaultOptions pattern (one struct, one constructor with sane
// local-dev defaults) and generalized from HTTP-polling intervals to the gateway's own
// transport and retention tunables.
type GatewayOptions struct {
	// RawBroadcastCap bounds retained RawBroadcast events per device (default 200, clamped to
	// [10, 10000] by ClampRawBroadcastCap, which config.Load applies).
	RawBroadcastCap int

	// DefaultUDPLiveness and DefaultUARTLiveness are used for devices whose DeviceConfig does
	// not set LivenessTimeout explicitly.
	DefaultUDPLiveness  time.Duration
	DefaultUARTLiveness time.Duration

	LivenessTick     time.Duration
	SubscriberSweep  time.Duration
	TCPDialTimeout   time.Duration
	TCPReadPoll      time.Duration
	SerialReadPoll   time.Duration
}

const (
	minRawBroadcastCap = 10
	maxRawBroadcastCap = 10000
)

// DefaultGatewayOptions gives baseline sensible defaults for local dev and tests.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		RawBroadcastCap:     200,
		DefaultUDPLiveness:  10 * time.Second,
		DefaultUARTLiveness: 30 * time.Second,
		LivenessTick:        5 * time.Second,
		SubscriberSweep:     30 * time.Second,
		TCPDialTimeout:      5 * time.Second,
		TCPReadPoll:         100 * time.Millisecond,
		SerialReadPoll:      100 * time.Millisecond,
	}
}

// ClampRawBroadcastCap applies the [10, 10000] bound spec §3 requires.
func ClampRawBroadcastCap(cap int) int {
	if cap < minRawBroadcastCap {
		return minRawBroadcastCap
	}
	if cap > maxRawBroadcastCap {
		return maxRawBroadcastCap
	}
	return cap
}
