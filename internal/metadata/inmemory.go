package metadata

import (
	"context"
	"sync"

	"github.com/fleetbridge/devicegw"
)

// InMemory is a development-profile Store: a mutex-guarded map, no disk persistence. It exists
// so the gateway is runnable standalone and in tests without a real relational backend (spec §6
// documents the persisted schema this stands in for). Grounded in the teacher's
// runtime.DeviceAdapter's mutex+map bookkeeping (runtime/device_adapter.go), generalized from a
// polled HTTP snapshot to a CRUD store.
type InMemory struct {
	mu      sync.RWMutex
	configs map[devicegw.DeviceID]devicegw.DeviceConfig

	uart  UARTSettings
	debug DebugSettings
}

// NewInMemory constructs an InMemory store with the given uart/debug singleton defaults.
func NewInMemory(uart UARTSettings, debug DebugSettings) *InMemory {
	return &InMemory{
		configs: make(map[devicegw.DeviceID]devicegw.DeviceConfig),
		uart:    uart,
		debug:   debug,
	}
}

func (s *InMemory) GetDeviceConfig(_ context.Context, id devicegw.DeviceID) (devicegw.DeviceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return devicegw.DeviceConfig{}, ErrNotFound
	}
	return cfg, nil
}

func (s *InMemory) PutDeviceConfig(_ context.Context, cfg devicegw.DeviceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.DeviceID] = cfg
	return nil
}

func (s *InMemory) DeleteDeviceConfig(_ context.Context, id devicegw.DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, id)
	return nil
}

func (s *InMemory) ListDeviceConfigs(_ context.Context) ([]devicegw.DeviceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]devicegw.DeviceConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (s *InMemory) GetUARTSettings(_ context.Context) (UARTSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uart, nil
}

func (s *InMemory) GetDebugSettings(_ context.Context) (DebugSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debug, nil
}
