package connection

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bennjii/reseda"
	"github.com/bennjii/reseda/internal/signaling"
	"github.com/bennjii/reseda/internal/wgconf"
)

// Disconnect tears down conn: it asks the relay to release the session when
// conn is connected, removes conn's peers from the tunnel, brings the tunnel
// down and persists the peer-less configuration. The returned snapshot is the
// last one published; it is Disconnected on success and Error otherwise.
func (c *Controller) Disconnect(ctx context.Context, conn reseda.ConnectionStatus, id reseda.Identity, configPath string) reseda.ConnectionStatus {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, span := c.tracer.Start(ctx, "connection.disconnect", trace.WithAttributes(
		attribute.String("reseda.connection_id", conn.ConnectionID),
		attribute.String("reseda.previous_state", conn.State.String()),
	))
	defer span.End()

	log := c.log.With("connection_id", conn.ConnectionID, "author", id.ID)
	log.Info("disconnect requested")

	status := func(state reseda.ConnectionState, cfg *wgconf.Config, msg string) reseda.ConnectionStatus {
		st := reseda.NewStatus(state).WithConfig(cfg)
		st.Message = msg
		st.ConnectionID = conn.ConnectionID
		st.Location = conn.Location
		st.Server = conn.Server
		return st
	}
	connCfg := conn.Config.Clone()

	// Stop the attempt so its watcher can no longer publish, but keep the
	// socket long enough to send the close query.
	c.mu.Lock()
	sock := c.detachLocked()
	c.publishLocked(status(reseda.Disconnecting, &connCfg, ""))
	c.mu.Unlock()
	if sock != nil {
		defer func() {
			if err := sock.Close(); err != nil {
				log.Debug("close signaling socket", "err", err)
			}
		}()
	}

	fail := func(err error) reseda.ConnectionStatus {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("disconnect failed", "err", err)
		st := status(reseda.Error, &connCfg, err.Error())
		c.publish(st)
		return st
	}

	cfg, err := c.store.Load(configPath)
	if err != nil {
		return fail(fmt.Errorf("load tunnel config: %w", err))
	}
	cfg.ClearPeers()

	if conn.State == reseda.Connected {
		switch {
		case sock == nil:
			log.Debug("no signaling socket to release session on")
		default:
			if err := sock.Send(signaling.Query{QueryType: signaling.QueryClose}); err != nil {
				log.Warn("send close query failed", "err", err)
			}
		}
	}

	c.publish(status(reseda.Disconnecting, &connCfg, ""))

	if err := c.teardown(ctx, connCfg.Peers); err != nil {
		return fail(err)
	}
	if err := c.store.Save(configPath, cfg); err != nil {
		return fail(fmt.Errorf("save tunnel config: %w", err))
	}

	final := status(reseda.Disconnected, cfg, "")
	c.publish(final)
	span.SetStatus(codes.Ok, "")
	log.Info("disconnected")
	return final
}

// teardown removes peers from the live tunnel and brings it down. Every peer
// removal is attempted even if an earlier one fails.
func (c *Controller) teardown(ctx context.Context, peers []wgconf.Peer) error {
	var errs []error
	for _, p := range peers {
		if p.PublicKey == "" {
			continue
		}
		if err := c.driver.RemovePeer(ctx, p.PublicKey); err != nil {
			errs = append(errs, fmt.Errorf("remove peer %s: %w", p.PublicKey, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	up, err := c.driver.IsUp(ctx)
	if err != nil {
		return fmt.Errorf("check tunnel state: %w", err)
	}
	if !up {
		return nil
	}
	if err := c.driver.Down(ctx); err != nil {
		return fmt.Errorf("bring tunnel down: %w", err)
	}
	return nil
}
