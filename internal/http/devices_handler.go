// Package httpapi serves the gateway's one piece of plain HTTP surface beyond the subscriber
// channel itself: a read-only JSON snapshot of the device registry for dashboards and curl-based
// debugging. Adapted from the teacher's internal/http.DevicesHandler (originally backed by
// runtime.DeviceAdapter's polled snapshot) to read from internal/manager.Manager's own registry
// instead, since this gateway has no separate polling adapter.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/manager"
)

// DeviceInfo is one row of the /api/devices snapshot response.
type DeviceInfo struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	ConnectionType string    `json:"connectionType"`
	Connected      bool      `json:"connected"`
	IP             string    `json:"ip,omitempty"`
	TCPPort        int       `json:"tcpPort,omitempty"`
	UDPPort        int       `json:"udpPort,omitempty"`
	LastSeen       time.Time `json:"lastSeen,omitempty"`
}

// DevicesHandler builds an HTTP handler serving the manager's current device snapshot.
func DevicesHandler(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		devices := mgr.Devices()
		out := struct {
			Devices []DeviceInfo `json:"devices"`
			Count   int          `json:"count"`
		}{}
		out.Devices = make([]DeviceInfo, 0, len(devices))
		for _, d := range devices {
			out.Devices = append(out.Devices, DeviceInfo{
				ID:             string(d.DeviceID),
				Source:         d.Source.String(),
				ConnectionType: connectionTypeString(d.ConnectionType),
				Connected:      d.Connected,
				IP:             d.IP,
				TCPPort:        d.TCPPort,
				UDPPort:        d.UDPPort,
				LastSeen:       d.LastSeen,
			})
		}
		out.Count = len(out.Devices)

		w.Header().Set("Content-Type", "application/json")
		writeCORS(w)
		_ = json.NewEncoder(w).Encode(out)
	}
}

func connectionTypeString(ct devicegw.ConnectionType) string {
	switch ct {
	case devicegw.ConnTypeTCPUDP:
		return "tcp/udp"
	case devicegw.ConnTypeUART:
		return "uart"
	default:
		return "unset"
	}
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}
