package manager

import (
	"context"
	"time"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/ids"
)

// RunLiveness runs the 5s-tick liveness monitor (spec §4.6 "Liveness monitor") until ctx is
// cancelled. Only UDP and UART devices are checked; TCP relies on socket-level keep-alive.
func (m *Manager) RunLiveness(ctx context.Context) {
	ticker := time.NewTicker(m.opts.LivenessTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkLiveness()
		}
	}
}

func (m *Manager) checkLiveness() {
	now := time.Now()

	m.mu.Lock()
	type staleEntry struct {
		id  devicegw.DeviceID
		cfg devicegw.DeviceConfig
	}
	var stale []staleEntry

	for id, seenAt := range m.lastSeen {
		cfg, hasConfig := m.configs[id]
		if !hasConfig {
			// Auto-discovered UART node: insert a default config before the check (spec §4.6).
			cfg = devicegw.DeviceConfig{
				DeviceID:        id,
				Source:          devicegw.SourceUART,
				LivenessTimeout: m.opts.DefaultUARTLiveness,
			}
			m.configs[id] = cfg
			ct := devicegw.ConnTypeUART
			if _, set := m.connectionType[id]; !set {
				m.connectionType[id] = ct
			}
		}

		timeout := cfg.LivenessTimeout
		if timeout <= 0 {
			if cfg.Source == devicegw.SourceUART {
				timeout = m.opts.DefaultUARTLiveness
			} else {
				timeout = m.opts.DefaultUDPLiveness
			}
		}

		if now.Sub(seenAt) > timeout && m.isConnected[id] {
			m.isConnected[id] = false
			delete(m.lastSeen, id)
			stale = append(stale, staleEntry{id: id, cfg: cfg})
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		_, _ = m.store.AddEvent(s.id, devicegw.Event{
			Kind:             devicegw.EventConnectionStatus,
			ConnectionStatus: &devicegw.ConnectionStatus{Connected: false},
		}, ids.System, "")
	}
}
