package helper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/bennjii/reseda/internal/connection"
)

var (
	_ connection.TunnelDriver = (*Client)(nil)
	_ connection.KeyProvider  = (*Client)(nil)
)

const configureHint = "start it with `sudo reseda helper`"

// Client forwards tunnel and key operations to a running helper.
type Client struct {
	socketPath string
	token      string
}

// NewClient creates a client for the helper listening on socketPath.
func NewClient(socketPath, token string) *Client {
	return &Client{socketPath: strings.TrimSpace(socketPath), token: strings.TrimSpace(token)}
}

func (c *Client) IsUp(ctx context.Context) (bool, error) {
	out, err := c.call(ctx, CmdIsUp, nil)
	if err != nil {
		return false, err
	}
	return !strings.Contains(out, StateStopped), nil
}

func (c *Client) Up(ctx context.Context) error {
	_, err := c.call(ctx, CmdStartTunnel, nil)
	return err
}

func (c *Client) Down(ctx context.Context) error {
	_, err := c.call(ctx, CmdStopTunnel, nil)
	return err
}

func (c *Client) ForceRemove(ctx context.Context) error {
	_, err := c.call(ctx, CmdRemoveService, nil)
	return err
}

func (c *Client) AddPeer(ctx context.Context, publicKey, endpoint string) error {
	_, err := c.call(ctx, CmdAddPeer, map[string]string{"public_key": publicKey, "endpoint": endpoint})
	return err
}

func (c *Client) RemovePeer(ctx context.Context, publicKey string) error {
	_, err := c.call(ctx, CmdRemovePeer, map[string]string{"public_key": publicKey})
	return err
}

// PublicKey returns the helper's raw output, which may carry trailing
// whitespace.
func (c *Client) PublicKey(ctx context.Context, privateKey string) (string, error) {
	return c.call(ctx, CmdGeneratePublicKey, map[string]string{"private_key": privateKey})
}

func (c *Client) GenerateKeyPair(ctx context.Context) (string, string, error) {
	out, err := c.call(ctx, CmdGenerateKeyPair, nil)
	if err != nil {
		return "", "", err
	}
	priv, pub, ok := strings.Cut(strings.TrimSpace(out), "\n")
	if !ok {
		return "", "", fmt.Errorf("malformed key pair from privileged helper")
	}
	return strings.TrimSpace(priv), strings.TrimSpace(pub), nil
}

func (c *Client) call(ctx context.Context, command string, args map[string]string) (string, error) {
	if c.socketPath == "" {
		return "", fmt.Errorf("privileged helper socket path is required")
	}

	conn, err := (&net.Dialer{}).DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		if isTransientSocketError(err) {
			return "", fmt.Errorf("privileged helper is unavailable: %w; %s", err, configureHint)
		}
		return "", fmt.Errorf("connect privileged helper: %w", err)
	}
	defer conn.Close()

	timeoutMS := defaultTimeoutMS
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", context.DeadlineExceeded
		}
		timeoutMS = int(remaining.Milliseconds())
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(Request{
		Token:     c.token,
		Command:   command,
		Args:      args,
		TimeoutMS: timeoutMS,
	}); err != nil {
		return "", fmt.Errorf("send privileged request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return "", fmt.Errorf("read privileged response: %w", err)
	}
	if msg := strings.TrimSpace(resp.Error); msg != "" {
		if msg == unauthorized {
			return resp.Output, ErrUnauthorized
		}
		return resp.Output, fmt.Errorf("%s: %s", command, msg)
	}
	return resp.Output, nil
}

// isTransientSocketError reports whether err indicates the socket is absent
// or the helper is not listening.
func isTransientSocketError(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
