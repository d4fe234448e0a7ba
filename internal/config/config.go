// Package config loads the gateway's runtime configuration (spec's ambient configuration
// concern): listen address, per-transport ports and timeouts, mDNS service types, and the
// manager's own self-advertisement fields.
//
// Grounded on tj-smith47-shelly-cli's internal/cmd/root.go initializeConfig: flag file path,
// falling back to an env var, falling back to a default search path, then layering
// SetEnvPrefix/AutomaticEnv over it so flags beat env vars which beat the file which beats
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fleetbridge/devicegw"
)

// EnvPrefix is the environment variable prefix viper binds against (DEVICEGW_LISTEN_ADDR, etc).
const EnvPrefix = "DEVICEGW"

// Config is every tunable this gateway reads at startup. Field names match the viper keys with
// "." replaced by "_" for the env var form.
type Config struct {
	// ListenAddr is where the subscriber channel's HTTP/websocket handler binds (spec §6).
	ListenAddr string `mapstructure:"listen_addr"`

	// DevicePort is the shared TCP/UDP port edge nodes are reachable on (spec §6, default 3232).
	DevicePort int `mapstructure:"device_port"`

	// SerialPort and SerialBaud configure the single wired UART session (spec §4.5).
	SerialPort string `mapstructure:"serial_port"`
	SerialBaud int    `mapstructure:"serial_baud"`

	// RawBroadcastCap bounds retained RawBroadcast history per device (spec §3), clamped to
	// [10, 10000] by devicegw.ClampRawBroadcastCap.
	RawBroadcastCap int `mapstructure:"raw_broadcast_cap"`

	// UDPLivenessTimeout and UARTLivenessTimeout are the defaults used for devices whose own
	// DeviceConfig does not override LivenessTimeout (spec §4.6 step 3).
	UDPLivenessTimeout  time.Duration `mapstructure:"udp_liveness_timeout"`
	UARTLivenessTimeout time.Duration `mapstructure:"uart_liveness_timeout"`

	// MDNSServiceTypes lists the mDNS service types for device discovery (spec §4.2). It is
	// loaded but not read: discovery.Browser browses its own discovery.ServiceTypes.
	MDNSServiceTypes []string `mapstructure:"mdns_service_types"`

	// MDNSSelfInstance, MDNSSelfHost, and MDNSSelfTXT describe this gateway's own mDNS
	// self-advertisement (spec §6). They are loaded but not read: discovery.Advertise registers
	// with its own built-in instance name and TXT record.
	MDNSSelfInstance string   `mapstructure:"mdns_self_instance"`
	MDNSSelfHost     string   `mapstructure:"mdns_self_host"`
	MDNSSelfTXT      []string `mapstructure:"mdns_self_txt"`

	// IdentityDefaultGrade is the grade internal/identity.Static hands to every user when no
	// real Identity collaborator is configured (spec's Non-goals keep that collaborator
	// external; this only sizes the in-process stand-in).
	IdentityDefaultGrade string `mapstructure:"identity_default_grade"`

	// LogFormat selects between logrus's text formatter (default, for dev) and its JSON
	// formatter ("json", for log aggregation).
	LogFormat string `mapstructure:"log_format"`
	LogLevel  string `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("device_port", 3232)
	v.SetDefault("serial_port", "")
	v.SetDefault("serial_baud", 115200)
	v.SetDefault("raw_broadcast_cap", 200)
	v.SetDefault("udp_liveness_timeout", 10*time.Second)
	v.SetDefault("uart_liveness_timeout", 30*time.Second)
	v.SetDefault("mdns_service_types", []string{"_arduino._tcp", "_http._tcp"})
	v.SetDefault("mdns_self_instance", "esp-server")
	v.SetDefault("mdns_self_host", "esp-server.local.")
	v.SetDefault("mdns_self_txt", []string{"version=1.0", "path=/", "type=esp32-manager", "protocol=http"})
	v.SetDefault("identity_default_grade", "R")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
}

// Load builds a Config from, in increasing precedence: built-in defaults, a YAML file (path, if
// non-empty, otherwise "./devicegw.yaml" / "$HOME/.config/devicegw/devicegw.yaml"; a missing
// file is skipped in either case),
// DEVICEGW_-prefixed environment variables, then whatever flags the caller already bound onto v
// via BindPFlag before calling Load.
func Load(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("devicegw")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/devicegw")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	cfg.RawBroadcastCap = devicegw.ClampRawBroadcastCap(cfg.RawBroadcastCap)
	if cfg.DevicePort <= 0 {
		cfg.DevicePort = 3232
	}
	if cfg.SerialBaud <= 0 {
		cfg.SerialBaud = 115200
	}
	return cfg, nil
}

// GatewayOptions projects the subset of Config that devicegw.GatewayOptions carries, leaving
// the rest of GatewayOptions' tuning knobs (tick intervals, dial timeouts) at their built-in
// defaults since this gateway does not expose them as top-level config fields.
func (c Config) GatewayOptions() devicegw.GatewayOptions {
	opts := devicegw.DefaultGatewayOptions()
	opts.RawBroadcastCap = c.RawBroadcastCap
	opts.DefaultUDPLiveness = c.UDPLivenessTimeout
	opts.DefaultUARTLiveness = c.UARTLivenessTimeout
	return opts
}
