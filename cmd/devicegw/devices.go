package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/config"
	"github.com/fleetbridge/devicegw/internal/discovery"
	"github.com/fleetbridge/devicegw/internal/eventstore"
	"github.com/fleetbridge/devicegw/internal/manager"
)

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect the gateway's device registry",
	}
	cmd.AddCommand(newDevicesListCmd())
	return cmd
}

// newDevicesListCmd browses mDNS for the configured window (spec §4.2), registers whatever it
// finds with a scratch manager via AddDevice (without the discovery event, metadata write and
// connect that `serve` also performs), and prints the resulting
// device/connection-state table. This module keeps HTTP routing external (spec's Non-goals), so
// there is no admin RPC to query a separately-running `serve` process; this command reconstructs
// the same startup snapshot locally instead, the way aldrin-isaac-newtron/cmd/newtron's noun
// commands operate directly against device state rather than through a management daemon.
func newDevicesListCmd() *cobra.Command {
	var browseWindow time.Duration
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse mDNS and print the resulting device/connection-state table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetViper(), cfgFile)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			opts := cfg.GatewayOptions()
			store := eventstore.NewStore(log, opts.RawBroadcastCap)
			mgr := manager.New(log, opts, store, nil, nil)
			browser := discovery.NewBrowser(log, cfg.DevicePort, func(cand discovery.Candidate) {
				mgr.AddDevice(devicegw.DeviceConfig{
					DeviceID: cand.DeviceID,
					Source:   devicegw.SourceTCP,
					IP:       cand.IP,
					TCPPort:  cand.TCPPort,
					UDPPort:  cand.UDPPort,
				})
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), browseWindow)
			defer cancel()
			if err := browser.Run(ctx); err != nil {
				return err
			}

			printDeviceTable(mgr.Devices())
			return nil
		},
	}
	cmd.Flags().DurationVar(&browseWindow, "window", 3*time.Second, "how long to browse mDNS before printing")
	return cmd
}

func printDeviceTable(devices []manager.DeviceSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE ID\tSOURCE\tCONN TYPE\tCONNECTED\tADDRESS\tLAST SEEN")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
			d.DeviceID, d.Source, connTypeLabel(d.ConnectionType), d.Connected, address(d), formatLastSeen(d.LastSeen))
	}
	_ = w.Flush()
}

func connTypeLabel(ct devicegw.ConnectionType) string {
	switch ct {
	case devicegw.ConnTypeTCPUDP:
		return "tcp/udp"
	case devicegw.ConnTypeUART:
		return "uart"
	default:
		return "unset"
	}
}

func address(d manager.DeviceSummary) string {
	if d.IP == "" {
		return "-"
	}
	return fmt.Sprintf("%s (tcp:%d udp:%d)", d.IP, d.TCPPort, d.UDPPort)
}

func formatLastSeen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
