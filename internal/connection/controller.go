// Package connection sequences a tunnel connection: key derivation, relay
// negotiation over the signaling socket, peer registration and teardown. The
// outcome of every step is published as a reseda.ConnectionStatus snapshot.
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bennjii/reseda"
)

const (
	DefaultRelayDomain      = "reseda.app"
	DefaultCoordinationAddr = "192.168.69.1:443"
	DefaultVerifyTimeout    = 30 * time.Second

	tracerName = "github.com/bennjii/reseda/internal/connection"
)

// Option configures a Controller.
type Option func(*Controller)

// WithDriver sets the tunnel driver.
func WithDriver(d TunnelDriver) Option {
	return func(c *Controller) { c.driver = d }
}

// WithKeys sets the key provider used to derive the client public key.
func WithKeys(k KeyProvider) Option {
	return func(c *Controller) { c.keys = k }
}

// WithConfigStore sets the tunnel config persistence backend.
func WithConfigStore(s ConfigStore) Option {
	return func(c *Controller) { c.store = s }
}

// WithDialer sets how negotiation sockets are opened.
func WithDialer(d Dialer) Option {
	return func(c *Controller) { c.dial = d }
}

// WithClock sets the clock used for attempt timestamps.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithTimeRecorder sets the sink for attempt start and completion times.
func WithTimeRecorder(r TimeRecorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithTracer sets the tracer for Connect, Disconnect and Resume spans.
// Defaults to the global otel tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithRelayDomain sets the domain relay locations are resolved under.
func WithRelayDomain(domain string) Option {
	return func(c *Controller) { c.relayDomain = domain }
}

// WithCoordinationAddr sets the in-tunnel host:port dialed by Resume.
func WithCoordinationAddr(addr string) Option {
	return func(c *Controller) { c.coordinationAddr = addr }
}

// WithVerifyTimeout bounds how long Connect waits for the relay to verify.
func WithVerifyTimeout(d time.Duration) Option {
	return func(c *Controller) { c.verifyTimeout = d }
}

// Controller owns at most one negotiation socket and drives the tunnel through
// Connect, Disconnect and Resume. It is safe for concurrent use; entry points
// run one at a time.
type Controller struct {
	driver   TunnelDriver
	keys     KeyProvider
	store    ConfigStore
	dial     Dialer
	clock    Clock
	recorder TimeRecorder
	tracer   trace.Tracer
	log      *slog.Logger

	relayDomain      string
	coordinationAddr string
	verifyTimeout    time.Duration

	// opMu serialises entry points and the peer-registration step of an
	// in-flight attempt.
	opMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	socket  Socket
	cancel  context.CancelFunc
	status  reseda.ConnectionStatus
	subs    map[*subscriber]struct{}
	closed  bool
	closeCh chan struct{}

	watchers sync.WaitGroup
}

// New creates a Controller. A driver, key provider, config store and dialer
// are required.
func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		clock:            RealClock{},
		recorder:         nopRecorder{},
		relayDomain:      DefaultRelayDomain,
		coordinationAddr: DefaultCoordinationAddr,
		verifyTimeout:    DefaultVerifyTimeout,
		log:              slog.With("component", "connection"),
		status:           reseda.NewStatus(reseda.Disconnected),
		subs:             make(map[*subscriber]struct{}),
		closeCh:          make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c, nil
}

func (c *Controller) validate() error {
	if c.driver == nil {
		return fmt.Errorf("tunnel driver is required")
	}
	if c.keys == nil {
		return fmt.Errorf("key provider is required")
	}
	if c.store == nil {
		return fmt.Errorf("config store is required")
	}
	if c.dial == nil {
		return fmt.Errorf("dialer is required")
	}
	if c.clock == nil {
		return fmt.Errorf("clock must not be nil")
	}
	if c.recorder == nil {
		return fmt.Errorf("time recorder must not be nil")
	}
	if strings.TrimSpace(c.relayDomain) == "" {
		return fmt.Errorf("relay domain must not be empty")
	}
	if c.verifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive")
	}
	return nil
}

// Current returns the most recently published snapshot.
func (c *Controller) Current() reseda.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close stops any in-flight attempt, closes the socket and ends every
// subscription. The tunnel itself is left as is.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sock := c.detachLocked()
	for s := range c.subs {
		s.stop()
		delete(c.subs, s)
	}
	close(c.closeCh)
	c.mu.Unlock()

	var err error
	if sock != nil {
		err = sock.Close()
	}
	c.watchers.Wait()
	if err != nil {
		return fmt.Errorf("close signaling socket: %w", err)
	}
	return nil
}

// beginAttempt invalidates any previous attempt, closes its socket and
// returns the generation and context of a new one.
func (c *Controller) beginAttempt(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	c.mu.Lock()
	prev := c.detachLocked()
	attemptCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	gen := c.gen
	c.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			c.log.Debug("close previous signaling socket", "err", err)
		}
	}
	return gen, attemptCtx, cancel
}

// detachLocked bumps the generation, cancels the in-flight attempt and hands
// the socket to the caller. c.mu must be held.
func (c *Controller) detachLocked() Socket {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	sock := c.socket
	c.socket = nil
	return sock
}

// installSocket makes sock the controller's socket if gen is still current.
func (c *Controller) installSocket(gen uint64, sock Socket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		return false
	}
	c.socket = sock
	return true
}

// current reports whether gen is the live attempt.
func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.gen
}

// derivePublicKey returns the public key for priv, cut after the base64
// padding the helper terminates it with.
func (c *Controller) derivePublicKey(ctx context.Context, priv string) (string, error) {
	if strings.TrimSpace(priv) == "" {
		return "", fmt.Errorf("derive public key: interface has no private key")
	}
	pub, err := c.keys.PublicKey(ctx, priv)
	if err != nil {
		return "", fmt.Errorf("derive public key: %w", err)
	}
	pub = normalizeKey(pub)
	if pub == "" {
		return "", fmt.Errorf("derive public key: key provider returned an empty key")
	}
	return pub, nil
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if i := strings.IndexByte(key, '='); i >= 0 {
		key = key[:i+1]
	}
	return key
}
