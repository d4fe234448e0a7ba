package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/channel"
	"github.com/fleetbridge/devicegw/internal/config"
	"github.com/fleetbridge/devicegw/internal/discovery"
	"github.com/fleetbridge/devicegw/internal/eventstore"
	"github.com/fleetbridge/devicegw/internal/identity"
	"github.com/fleetbridge/devicegw/internal/ids"
	"github.com/fleetbridge/devicegw/internal/manager"
	"github.com/fleetbridge/devicegw/internal/metadata"
	"github.com/fleetbridge/devicegw/internal/server"
	"github.com/fleetbridge/devicegw/internal/transport/serial"
	"github.com/fleetbridge/devicegw/internal/transport/udp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway: discovery, device transports, and the subscriber channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetViper(), cfgFile)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func newLogger(cfg config.Config) *logrus.Entry {
	l := logrus.New()
	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		l.SetLevel(level)
	}
	return logrus.NewEntry(l)
}

// runServe wires every component spec §4 describes into one running process: the event store,
// the device manager, the shared UDP socket, the optional UART session, mDNS discovery and
// self-advertisement, and the subscriber channel's HTTP handler. Generalizes the teacher's
// original main.go (poll loop + one HTTP server + signal handling) to this gateway's several
// concurrent components, using errgroup instead of a bare goroutine+errCh pair since there is
// now more than one background loop to supervise together.
func runServe(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := cfg.GatewayOptions()
	store := eventstore.NewStore(log.WithField("component", "eventstore"), opts.RawBroadcastCap)

	var mgr *manager.Manager
	udpDemux := udp.NewDemultiplexer(log.WithField("component", "udp"), func(msg udp.Message) { mgr.IngestUDP(msg) }, nil)

	var uartSession *serial.Session
	if cfg.SerialPort != "" {
		uartSession = serial.NewSession(log.WithField("component", "serial"), cfg.SerialPort, cfg.SerialBaud, opts.SerialReadPoll,
			func(deviceID devicegw.DeviceID, payload []byte) { mgr.IngestSerial(deviceID, payload) })
	}
	mgr = manager.New(log.WithField("component", "manager"), opts, store, udpDemux, uartSession)

	grade, _ := identity.ParseGrade(cfg.IdentityDefaultGrade)
	idProvider := identity.NewStatic(grade)

	// metadata.InMemory stands in for the persisted device/settings store spec §6 documents
	// (explicitly out of scope); its uart_settings singleton seeds the serial port this process
	// was started with so the rest of the gateway has one place to read it from.
	metaStore := metadata.NewInMemory(
		metadata.UARTSettings{Port: cfg.SerialPort, Baud: cfg.SerialBaud, AutoConnect: cfg.SerialPort != ""},
		metadata.DebugSettings{MaxRawBroadcastEvents: cfg.RawBroadcastCap},
	)
	if known, err := metaStore.ListDeviceConfigs(ctx); err == nil {
		for _, deviceCfg := range known {
			mgr.AddDevice(deviceCfg)
		}
	}

	browser := discovery.NewBrowser(log.WithField("component", "discovery"), cfg.DevicePort, func(cand discovery.Candidate) {
		discovered := devicegw.DeviceConfig{
			DeviceID: cand.DeviceID,
			Source:   devicegw.SourceTCP,
			IP:       cand.IP,
			TCPPort:  cand.TCPPort,
			UDPPort:  cand.UDPPort,
		}
		if _, err := store.AddEvent(ids.System, devicegw.Event{
			Kind: devicegw.EventDeviceDiscovered,
			DeviceDiscovered: &devicegw.DeviceDiscovered{
				IP:           cand.IP,
				TCPPort:      cand.TCPPort,
				UDPPort:      cand.UDPPort,
				DiscoveredAt: time.Now(),
				MAC:          nonEmptyPtr(cand.MAC),
				Hostname:     nonEmptyPtr(cand.Hostname),
			},
		}, "", ""); err != nil {
			log.WithError(err).WithField("device_id", string(cand.DeviceID)).Warn("deviceDiscovered event rejected")
		}
		mgr.AddDevice(discovered)
		if err := metaStore.PutDeviceConfig(ctx, discovered); err != nil {
			log.WithError(err).WithField("device_id", string(cand.DeviceID)).Debug("metadata store put failed")
		}
		if err := mgr.ConnectDevice(ctx, cand.DeviceID); err != nil {
			log.WithError(err).WithField("device_id", string(cand.DeviceID)).Warn("auto-connect after discovery failed")
		}
	})

	handler := channel.NewHandler(mgr, store, idProvider, browser, log.WithField("component", "channel"))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return udpDemux.Listen(gctx, cfg.DevicePort) })
	group.Go(func() error { return browser.Run(gctx) })
	group.Go(func() error {
		advertiser := discovery.Advertise(log.WithField("component", "discovery"), cfg.DevicePort)
		if advertiser != nil {
			defer advertiser.Shutdown()
		}
		<-gctx.Done()
		return nil
	})
	if uartSession != nil {
		group.Go(func() error { return uartSession.Open(gctx) })
	}
	group.Go(func() error { mgr.RunLiveness(gctx); return nil })
	group.Go(func() error { return runSubscriberSweep(gctx, store, opts.SubscriberSweep) })

	_, httpErrCh, err := server.Start(gctx, server.Config{
		ListenAddr: cfg.ListenAddr,
		Channel:    handler,
		Manager:    mgr,
		Log:        log.WithField("component", "http"),
	})
	if err != nil {
		return err
	}
	group.Go(func() error { return <-httpErrCh })

	log.WithField("listen_addr", cfg.ListenAddr).Info("devicegw serving")
	if err := group.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// runSubscriberSweep periodically drops subscriber-channel registrations whose connection has
// already gone away (spec §5's stale-subscriber cleanup).
func runSubscriberSweep(ctx context.Context, store *eventstore.Store, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			store.CleanupStale()
		}
	}
}
