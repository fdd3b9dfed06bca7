package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultPingInterval     = 54 * time.Second
	defaultReadTimeout      = 60 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	// dialMaxRetryTime bounds how long Dial keeps retrying a relay that is
	// not accepting connections.
	dialMaxRetryTime = 15 * time.Second
	maxFrameSize     = 512 * 1024
	frameBuffer      = 16
)

// ErrClosed is returned by Send once the socket is no longer open.
var ErrClosed = errors.New("signaling socket closed")

// Client is an open negotiation socket. Inbound frames are decoded and
// delivered on Frames; malformed frames are logged and dropped.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	frames chan Frame
	stop   chan struct{}
	done   chan struct{}

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

type dialConfig struct {
	dialer       *websocket.Dialer
	header       http.Header
	newBackoff   func() backoff.BackOff
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// DialOption configures Dial.
type DialOption func(*dialConfig)

// WithDialer replaces the websocket dialer, for example to trust a test CA.
func WithDialer(d *websocket.Dialer) DialOption {
	return func(c *dialConfig) {
		c.dialer = d
	}
}

// WithHeader sets extra handshake headers.
func WithHeader(h http.Header) DialOption {
	return func(c *dialConfig) {
		c.header = h
	}
}

// WithBackoff sets the retry policy for the handshake. Pass a function
// returning &backoff.StopBackOff{} to disable retries.
func WithBackoff(newBackoff func() backoff.BackOff) DialOption {
	return func(c *dialConfig) {
		c.newBackoff = newBackoff
	}
}

// WithKeepalive sets the ping interval and the read deadline refreshed by each
// pong. readTimeout must exceed pingInterval.
func WithKeepalive(pingInterval, readTimeout time.Duration) DialOption {
	return func(c *dialConfig) {
		c.pingInterval = pingInterval
		c.readTimeout = readTimeout
	}
}

func defaultDialConfig() dialConfig {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = defaultHandshakeTimeout
	return dialConfig{
		dialer: &d,
		newBackoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(250*time.Millisecond),
				backoff.WithMaxInterval(2*time.Second),
				backoff.WithMaxElapsedTime(dialMaxRetryTime),
			)
		},
		pingInterval: defaultPingInterval,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
	}
}

// Dial opens a socket to rawURL, retrying transient failures. A handshake
// rejected with a 4xx status is not retried. The returned client is open.
func Dial(ctx context.Context, rawURL string, opts ...DialOption) (*Client, error) {
	cfg := defaultDialConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	target := redact(rawURL)

	attempt := func() (*websocket.Conn, error) {
		conn, resp, err := cfg.dialer.DialContext(ctx, rawURL, cfg.header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if resp != nil {
			err = fmt.Errorf("status %d: %w", resp.StatusCode, err)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, backoff.Permanent(err)
			}
		}
		slog.Debug("retrying signaling dial", "url", target, "err", err)
		return nil, err
	}

	conn, err := backoff.RetryWithData(attempt, backoff.WithContext(cfg.newBackoff(), ctx))
	if err != nil {
		return nil, fmt.Errorf("dial signaling socket %s: %w", target, err)
	}

	c := &Client{
		conn:         conn,
		log:          slog.With("component", "signaling", "url", target),
		pingInterval: cfg.pingInterval,
		readTimeout:  cfg.readTimeout,
		writeTimeout: cfg.writeTimeout,
		frames:       make(chan Frame, frameBuffer),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()

	c.log.Debug("signaling socket open")
	return c, nil
}

// Send writes q as a JSON text frame.
func (c *Client) Send(q Query) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		c.log.Warn("dropping query on closed socket", "query_type", q.QueryType)
		return ErrClosed
	}

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Warn("send query failed", "query_type", q.QueryType, "err", err)
		return fmt.Errorf("send %s query: %w", q.QueryType, err)
	}
	return nil
}

// Frames returns the decoded inbound frames. The channel is closed when the
// socket closes for any reason.
func (c *Client) Frames() <-chan Frame {
	return c.frames
}

// Done is closed once the socket has fully shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a normal closure and closes the socket. It is safe to call more
// than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	err := c.conn.Close()
	<-c.done

	c.log.Debug("signaling socket closed")
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close signaling socket: %w", err)
	}
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		_ = c.conn.Close()
		close(c.frames)
		close(c.done)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stop:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Warn("signaling socket read failed", "err", err)
				}
			}
			return
		}

		f, err := DecodeFrame(data)
		if err != nil {
			c.log.Warn("dropping malformed frame", "err", err)
			continue
		}

		select {
		case c.frames <- f:
		case <-c.stop:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.log.Debug("ping failed", "err", err)
				return
			}
		}
	}
}
