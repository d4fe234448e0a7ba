// Package metadata defines the pluggable MetadataStore collaborator spec.md §1/§6 keeps
// external: persistent CRUD on device records and the uart_settings and debug_settings
// singletons. Store has no methods for user records. A real deployment backs this with the relational schema spec §6 documents; this
// module only calls through the interface.
package metadata

import (
	"context"
	"errors"

	"github.com/fleetbridge/devicegw"
)

var ErrNotFound = errors.New("metadata: not found")

// DevicePermission is one row of the device_permissions table (spec §6).
type DevicePermission struct {
	DeviceID devicegw.DeviceID
	UserID   string
	Grade    string
}

// UARTSettings is the singleton uart_settings row.
type UARTSettings struct {
	Port        string
	Baud        int
	AutoConnect bool
}

// DebugSettings is the singleton debug_settings row.
type DebugSettings struct {
	MaxRawBroadcastEvents int
}

// Store is the pluggable persistence collaborator. Device records are keyed by the MAC-dash
// device id per spec §6.
type Store interface {
	GetDeviceConfig(ctx context.Context, id devicegw.DeviceID) (devicegw.DeviceConfig, error)
	PutDeviceConfig(ctx context.Context, cfg devicegw.DeviceConfig) error
	DeleteDeviceConfig(ctx context.Context, id devicegw.DeviceID) error
	ListDeviceConfigs(ctx context.Context) ([]devicegw.DeviceConfig, error)

	GetUARTSettings(ctx context.Context) (UARTSettings, error)
	GetDebugSettings(ctx context.Context) (DebugSettings, error)
}
