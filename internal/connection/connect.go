package connection

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bennjii/reseda"
	"github.com/bennjii/reseda/internal/signaling"
	"github.com/bennjii/reseda/internal/wgconf"
)

const (
	MessagePublishing = "Publishing"
	MessageAddingPeer = "Adding Peer"

	defaultKeepalive = 25
)

var (
	// ErrVerifyTimeout is reported when the relay does not verify in time.
	ErrVerifyTimeout = errors.New("timed out waiting for verification")
	// ErrSocketClosed is reported when the socket closes before verification.
	ErrSocketClosed = errors.New("signaling socket closed before verification")

	defaultAllowedIPs = []string{"0.0.0.0/0", "::/0"}
)

// attempt is the state a watcher needs to finish a connection attempt.
type attempt struct {
	gen        uint64
	id         string
	location   *reseda.Location
	server     string
	cfg        *wgconf.Config
	configPath string
	sock       Socket
	span       trace.Span
	verified   bool
}

func (a *attempt) status(state reseda.ConnectionState, msg string) reseda.ConnectionStatus {
	st := reseda.NewStatus(state).WithConfig(a.cfg)
	st.Message = msg
	st.ConnectionID = a.id
	st.Location = a.location
	st.Server = a.server
	return st
}

// Connect starts a connection attempt to loc on behalf of id and returns the
// attempt's connection id. Any previous attempt and its socket are abandoned
// first. Connect returns once the negotiation socket is open; the outcome is
// published to subscribers. Failures never escape as errors: they end the
// attempt in the Error state.
func (c *Controller) Connect(ctx context.Context, loc reseda.Location, id reseda.Identity, configPath string) string {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	connID := uuid.NewString()
	gen, attemptCtx, cancel := c.beginAttempt(ctx)

	attemptCtx, span := c.tracer.Start(attemptCtx, "connection.connect", trace.WithAttributes(
		attribute.String("reseda.connection_id", connID),
		attribute.String("reseda.location", loc.ID),
	))
	location := loc
	a := &attempt{
		gen:        gen,
		id:         connID,
		location:   &location,
		server:     loc.ID,
		configPath: configPath,
		span:       span,
	}
	log := c.log.With("connection_id", connID, "location", loc.ID)
	log.Info("connect requested")

	c.recorder.MarkStarted(attemptCtx, connID, c.clock.Now())

	cfg, err := c.store.Load(configPath)
	if err != nil {
		c.failAttempt(a, fmt.Errorf("load tunnel config: %w", err))
		cancel()
		return connID
	}
	a.cfg = cfg
	if n := cfg.ClearPeers(); n > 0 {
		log.Debug("cleared stale peers", "count", n)
	}

	pub, err := c.derivePublicKey(attemptCtx, cfg.Interface.PrivateKey)
	if err != nil {
		c.failAttempt(a, err)
		cancel()
		return connID
	}
	cfg.Interface.PublicKey = pub

	c.publishIfCurrent(gen, a.status(reseda.Connecting, MessagePublishing))

	url, err := signaling.RelayURL(loc.ID, c.relayDomain, id.ID, pub)
	if err != nil {
		c.failAttempt(a, err)
		cancel()
		return connID
	}
	sock, err := c.dial(attemptCtx, url)
	if err != nil {
		c.failAttempt(a, fmt.Errorf("open signaling socket: %w", err))
		cancel()
		return connID
	}
	if !c.installSocket(gen, sock) {
		_ = sock.Close()
		span.End()
		return connID
	}
	a.sock = sock

	if err := sock.Send(signaling.Query{QueryType: signaling.QueryOpen}); err != nil {
		c.failAttempt(a, fmt.Errorf("send open query: %w", err))
		return connID
	}
	span.AddEvent("open query sent")

	c.watchers.Add(1)
	go c.watch(attemptCtx, a)
	return connID
}

// watch consumes frames for an attempt until it is verified, fails, or is
// superseded. After verification it keeps draining the socket so keep-alives
// are answered.
func (c *Controller) watch(ctx context.Context, a *attempt) {
	defer c.watchers.Done()
	log := c.log.With("connection_id", a.id)

	var timeout <-chan time.Time
	if !a.verified {
		timer := time.NewTimer(c.verifyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			if !a.verified {
				c.failAttempt(a, fmt.Errorf("connect cancelled: %w", context.Cause(ctx)))
			}
			return
		case <-timeout:
			c.failAttempt(a, ErrVerifyTimeout)
			return
		case f, ok := <-a.sock.Frames():
			if !ok {
				if !a.verified {
					c.failAttempt(a, ErrSocketClosed)
				} else if c.current(a.gen) {
					log.Warn("signaling socket closed")
				}
				return
			}
			switch {
			case f.IsVerification() && !a.verified:
				if !c.verify(ctx, a, *f.Verification) {
					return
				}
				timeout = nil
			case f.Type == signaling.FrameError && !a.verified:
				c.failAttempt(a, fmt.Errorf("relay error: %s", strings.TrimSpace(f.Text)))
				return
			default:
				log.Debug("signaling frame", "type", f.Type, "text", f.Text, "verification", f.Verification != nil)
			}
		}
	}
}

// verify registers the relay as the tunnel's peer. It reports whether the
// attempt is still live and connected.
func (c *Controller) verify(ctx context.Context, a *attempt, v signaling.Verification) bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if !c.current(a.gen) {
		return false
	}

	log := c.log.With("connection_id", a.id)
	c.publishIfCurrent(a.gen, a.status(reseda.Connecting, MessageAddingPeer))

	peer := wgconf.Peer{
		PublicKey:           v.ServerPublicKey,
		AllowedIPs:          append([]string(nil), defaultAllowedIPs...),
		Endpoint:            wgconf.EndpointWithPort(v.Endpoint),
		PersistentKeepalive: defaultKeepalive,
	}
	if err := a.cfg.AddPeer(peer); err != nil {
		c.failAttempt(a, err)
		return false
	}
	if addr := interfaceAddress(v.ClientAddress); addr != "" {
		a.cfg.Interface.Address = []string{addr}
	}
	// Drivers read the interface address from the saved config on Up.
	if err := c.store.Save(a.configPath, a.cfg); err != nil {
		log.Warn("failed to persist tunnel config", "err", err)
	}

	up, err := c.driver.IsUp(ctx)
	if err != nil {
		c.failAttempt(a, fmt.Errorf("check tunnel state: %w", err))
		return false
	}
	if !up {
		if err := c.driver.Up(ctx); err != nil {
			c.failAttempt(a, fmt.Errorf("bring tunnel up: %w", err))
			return false
		}
	}
	if err := c.driver.AddPeer(ctx, v.ServerPublicKey, v.Endpoint); err != nil {
		c.failAttempt(a, fmt.Errorf("add relay peer: %w", err))
		return false
	}

	a.verified = true
	if !c.publishIfCurrent(a.gen, a.status(reseda.Connected, "")) {
		return false
	}
	c.recorder.MarkCompleted(ctx, a.id, c.clock.Now())
	a.span.SetStatus(codes.Ok, "")
	a.span.End()
	log.Info("connected", "server_public_key", v.ServerPublicKey, "endpoint", peer.Endpoint)
	return true
}

// failAttempt publishes an Error snapshot for a live attempt and closes its
// socket. Superseded attempts are dropped silently.
func (c *Controller) failAttempt(a *attempt, err error) {
	a.span.RecordError(err)
	a.span.SetStatus(codes.Error, err.Error())
	a.span.End()

	c.mu.Lock()
	if c.closed || a.gen != c.gen {
		c.mu.Unlock()
		return
	}
	st := a.status(reseda.Error, err.Error())
	var sock Socket
	if a.sock != nil && c.socket == a.sock {
		sock = c.detachLocked()
	}
	c.publishLocked(st)
	c.mu.Unlock()

	c.log.Warn("connection attempt failed", "connection_id", a.id, "err", err)
	if sock != nil {
		_ = sock.Close()
	}
}

// interfaceAddress turns a relay-assigned client address into interface
// address notation. Bare IPs get a host prefix.
func interfaceAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "/") {
		return raw
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return raw
	}
	return netip.PrefixFrom(addr, addr.BitLen()).String()
}
