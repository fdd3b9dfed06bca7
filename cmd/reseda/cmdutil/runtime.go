// Package cmdutil wires configuration into the components the reseda
// commands run.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/bennjii/reseda"
	"github.com/bennjii/reseda/config"
	"github.com/bennjii/reseda/internal/clock"
	"github.com/bennjii/reseda/internal/connection"
	"github.com/bennjii/reseda/internal/helper"
	"github.com/bennjii/reseda/internal/history"
	"github.com/bennjii/reseda/internal/metrics"
	"github.com/bennjii/reseda/internal/wgconf"
	"github.com/bennjii/reseda/internal/wireguard"
)

// Globals are the persistent root flags shared by every command.
type Globals struct {
	ConfigPath string
	Debug      bool
}

// LoadConfig reads the config file named by the global flags.
func (g *Globals) LoadConfig() (*config.Config, error) {
	return config.Load(g.ConfigPath)
}

// Driver returns the tunnel driver and key provider for cfg: the privileged
// helper when it is enabled, otherwise the in-process WireGuard driver.
func Driver(cfg *config.Config) (connection.TunnelDriver, connection.KeyProvider, error) {
	if cfg.Helper.Enabled {
		tok, err := helper.ReadToken(cfg.Helper.TokenPath)
		if err != nil {
			return nil, nil, err
		}
		c := helper.NewClient(cfg.Helper.Socket, tok)
		return c, c, nil
	}
	return wireguard.New(cfg.Interface, wireguard.FileConfig(cfg.TunnelConfig)), wireguard.Keys{}, nil
}

// Runtime holds the long-lived components of a connection session.
type Runtime struct {
	Config  *config.Config
	Driver  connection.TunnelDriver
	Keys    connection.KeyProvider
	Clock   *clock.NTP
	Metrics *metrics.Metrics
	History *history.Store

	tracer trace.Tracer
	log    *slog.Logger

	mu      sync.Mutex
	started map[string]time.Time
}

// NewRuntime builds the session components. History is optional: a database
// that cannot be opened is logged and skipped.
func NewRuntime(cfg *config.Config, tracer trace.Tracer) (*Runtime, error) {
	driver, keys, err := Driver(cfg)
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		Config:  cfg,
		Driver:  driver,
		Keys:    keys,
		Clock:   clock.NewNTP(cfg.NTPServer),
		Metrics: metrics.New(),
		tracer:  tracer,
		log:     slog.With("component", "session"),
		started: make(map[string]time.Time),
	}
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			r.log.Warn("failed to open session history", "path", cfg.HistoryDB, "err", err)
		} else {
			r.History = store
		}
	}
	return r, nil
}

// Controller creates a connection controller over the runtime's components.
func (r *Runtime) Controller() (*connection.Controller, error) {
	opts := []connection.Option{
		connection.WithDriver(r.Driver),
		connection.WithKeys(r.Keys),
		connection.WithConfigStore(wgconf.FileStore{}),
		connection.WithDialer(connection.SignalingDialer()),
		connection.WithClock(r.Clock),
		connection.WithTimeRecorder(r),
		connection.WithRelayDomain(r.Config.RelayDomain),
		connection.WithCoordinationAddr(r.Config.CoordinationAddress),
		connection.WithVerifyTimeout(r.Config.VerifyTimeout),
	}
	if r.tracer != nil {
		opts = append(opts, connection.WithTracer(r.tracer))
	}
	return connection.New(opts...)
}

// MarkStarted forwards the attempt start to history and remembers it for the
// connect duration metric.
func (r *Runtime) MarkStarted(ctx context.Context, connectionID string, at time.Time) {
	r.mu.Lock()
	r.started[connectionID] = at
	r.mu.Unlock()
	if r.History != nil {
		r.History.MarkStarted(ctx, connectionID, at)
	}
}

func (r *Runtime) MarkCompleted(ctx context.Context, connectionID string, at time.Time) {
	r.mu.Lock()
	start, ok := r.started[connectionID]
	delete(r.started, connectionID)
	r.mu.Unlock()
	if ok {
		r.Metrics.ObserveConnectDuration(at.Sub(start))
	}
	if r.History != nil {
		r.History.MarkCompleted(ctx, connectionID, at)
	}
}

// Observe records a published snapshot in metrics and history.
func (r *Runtime) Observe(ctx context.Context, st reseda.ConnectionStatus) {
	r.Metrics.Observe(st)
	if r.History == nil {
		return
	}
	if err := r.History.Observe(ctx, st, r.Clock.Now()); err != nil {
		r.log.Warn("failed to record session status", "err", err)
	}
}

// RunBackground runs the NTP clock and, when configured, the metrics server
// until ctx is done.
func (r *Runtime) RunBackground(ctx context.Context) error {
	go r.Clock.Run(ctx)

	if r.Config.MetricsAddress == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Metrics.Handler())
	srv := &http.Server{Addr: r.Config.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	r.log.Debug("metrics server listening", "addr", r.Config.MetricsAddress)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	}
}

func (r *Runtime) Close() error {
	if r.History != nil {
		return r.History.Close()
	}
	return nil
}
