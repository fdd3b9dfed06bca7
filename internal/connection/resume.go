package connection

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bennjii/reseda"
	"github.com/bennjii/reseda/internal/signaling"
)

// Resume re-attaches to a tunnel left up by a previous session. It reports
// whether a socket was opened. Missing identity, key or configured peer, or a
// tunnel that is down, means there is nothing to resume: Resume returns false
// without publishing anything.
func (c *Controller) Resume(ctx context.Context, pool []reseda.Location, id reseda.Identity, configPath string) bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	log := c.log.With("author", id.ID)
	if strings.TrimSpace(id.ID) == "" {
		log.Debug("nothing to resume", "reason", "no identity")
		return false
	}

	cfg, err := c.store.Load(configPath)
	if err != nil {
		log.Debug("nothing to resume", "reason", "config unavailable", "err", err)
		return false
	}
	pub, err := c.derivePublicKey(ctx, cfg.Interface.PrivateKey)
	if err != nil {
		log.Debug("nothing to resume", "reason", "no public key", "err", err)
		return false
	}
	host := cfg.FirstPeerHost()
	if host == "" {
		log.Debug("nothing to resume", "reason", "no configured peer")
		return false
	}
	up, err := c.driver.IsUp(ctx)
	if err != nil || !up {
		log.Debug("nothing to resume", "reason", "tunnel down", "err", err)
		return false
	}
	cfg.Interface.PublicKey = pub

	connID := uuid.NewString()
	gen, attemptCtx, cancel := c.beginAttempt(ctx)
	attemptCtx, span := c.tracer.Start(attemptCtx, "connection.resume", trace.WithAttributes(
		attribute.String("reseda.connection_id", connID),
		attribute.String("reseda.peer_host", host),
	))

	a := &attempt{
		gen:        gen,
		id:         connID,
		server:     host,
		cfg:        cfg,
		configPath: configPath,
		span:       span,
		verified:   true,
	}
	if loc, ok := reseda.FindByHost(pool, host); ok {
		a.location = &loc
		a.server = loc.ID
	}

	c.recorder.MarkStarted(attemptCtx, connID, c.clock.Now())

	url, err := signaling.CoordinationURL(c.coordinationAddr, id.ID, pub)
	if err != nil {
		c.failAttempt(a, err)
		cancel()
		return false
	}
	sock, err := c.dial(attemptCtx, url)
	if err != nil {
		c.failAttempt(a, fmt.Errorf("open coordination socket: %w", err))
		cancel()
		return false
	}
	if !c.installSocket(gen, sock) {
		_ = sock.Close()
		span.End()
		return false
	}
	a.sock = sock

	c.publishIfCurrent(gen, a.status(reseda.Connected, ""))
	span.SetStatus(codes.Ok, "")
	span.End()
	log.Info("resumed connection", "connection_id", connID, "server", a.server)

	c.watchers.Add(1)
	go c.watch(attemptCtx, a)
	return true
}
