package connection

import (
	"context"
	"time"

	"github.com/bennjii/reseda/internal/signaling"
	"github.com/bennjii/reseda/internal/wgconf"
)

// Clock abstracts time.Now() for deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TunnelDriver controls the local WireGuard tunnel.
// Production: wireguard.Kernel / wireguard.Userspace, or helper.Client when
// the tunnel is owned by the privileged helper
// Testing: fake.Driver
type TunnelDriver interface {
	IsUp(ctx context.Context) (bool, error)
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	ForceRemove(ctx context.Context) error
	AddPeer(ctx context.Context, publicKey, endpoint string) error
	RemovePeer(ctx context.Context, publicKey string) error
}

// KeyProvider derives and generates Curve25519 key pairs.
// Production: wireguard.Keys or helper.Client
// Testing: fake.Keys
type KeyProvider interface {
	PublicKey(ctx context.Context, privateKey string) (string, error)
	GenerateKeyPair(ctx context.Context) (privateKey, publicKey string, err error)
}

// ConfigStore loads and saves the tunnel configuration file.
// Production: wgconf.FileStore
// Testing: fake.ConfigStore
type ConfigStore interface {
	Load(path string) (*wgconf.Config, error)
	Save(path string, cfg *wgconf.Config) error
}

// Socket is an open negotiation socket.
// Production: *signaling.Client
// Testing: fake.Socket
type Socket interface {
	Send(q signaling.Query) error
	Frames() <-chan signaling.Frame
	Close() error
}

// Dialer opens a negotiation socket to url. Returning means the socket is open.
type Dialer func(ctx context.Context, url string) (Socket, error)

// SignalingDialer adapts signaling.Dial to a Dialer.
func SignalingDialer(opts ...signaling.DialOption) Dialer {
	return func(ctx context.Context, url string) (Socket, error) {
		c, err := signaling.Dial(ctx, url, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// TimeRecorder receives the start and completion time of each attempt.
// Production: history.Store
// Testing: fake.TimeRecorder
type TimeRecorder interface {
	MarkStarted(ctx context.Context, connectionID string, at time.Time)
	MarkCompleted(ctx context.Context, connectionID string, at time.Time)
}

type nopRecorder struct{}

func (nopRecorder) MarkStarted(context.Context, string, time.Time)   {}
func (nopRecorder) MarkCompleted(context.Context, string, time.Time) {}
