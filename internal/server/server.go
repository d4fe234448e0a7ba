// Package server starts the gateway's one HTTP listener: the subscriber channel's websocket
// upgrade at /channel (spec §6) and a read-only JSON device snapshot at /api/devices for
// dashboards and curl-based debugging. Adapted from the teacher's
// StartDiscoveryServer/DiscoveryConfig (originally a single-purpose /api/devices server backed
// by runtime.DeviceAdapter's poll loop) into a two-route server over this gateway's own
// manager and subscriber-channel handler.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	httpapi "github.com/fleetbridge/devicegw/internal/http"
	"github.com/fleetbridge/devicegw/internal/manager"
)

// Config configures the gateway's HTTP listener.
type Config struct {
	ListenAddr string // address to bind (e.g. :8080)
	Channel    http.Handler
	Manager    *manager.Manager
	Log        *logrus.Entry

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

var ErrNilChannel = errors.New("server: channel handler is nil")

// Start builds the mux, starts listening, and arranges for Shutdown on ctx cancellation. The
// returned error channel receives at most one terminal error from ListenAndServe; it is closed
// once the listener has fully stopped.
func Start(ctx context.Context, cfg Config) (*http.Server, <-chan error, error) {
	if cfg.Channel == nil {
		return nil, nil, ErrNilChannel
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.New())
	}

	mux := http.NewServeMux()
	mux.Handle("/channel", cfg.Channel)
	if cfg.Manager != nil {
		mux.HandleFunc("/api/devices", httpapi.DevicesHandler(cfg.Manager))
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 10*time.Second),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		cfg.Log.WithField("listen_addr", cfg.ListenAddr).Info("http server listening (/channel, /api/devices)")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return srv, errCh, nil
}

func durationOr(v, d time.Duration) time.Duration {
	if v <= 0 {
		return d
	}
	return v
}
