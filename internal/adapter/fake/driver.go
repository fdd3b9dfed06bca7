package fake

import (
	"context"
	"maps"
	"sync"

	"github.com/bennjii/reseda/internal/adapter/fake/fault"
	"github.com/bennjii/reseda/internal/connection"
)

var _ connection.TunnelDriver = (*Driver)(nil)

const (
	FaultDriverIsUp        = "driver.is_up"
	FaultDriverUp          = "driver.up"
	FaultDriverDown        = "driver.down"
	FaultDriverForceRemove = "driver.force_remove"
	FaultDriverAddPeer     = "driver.add_peer"
	FaultDriverRemovePeer  = "driver.remove_peer"
)

// Driver is an in-memory tunnel: an up flag and a peer table keyed by public
// key.
type Driver struct {
	CallRecorder
	Faults *fault.Injector

	mu    sync.Mutex
	up    bool
	peers map[string]string
}

// NewDriver creates a Driver that starts down with no peers.
func NewDriver() *Driver {
	return &Driver{Faults: fault.NewInjector(), peers: make(map[string]string)}
}

// SetUp forces the tunnel state without recording a call.
func (d *Driver) SetUp(up bool) {
	d.mu.Lock()
	d.up = up
	d.mu.Unlock()
}

// Peers returns the configured peers as public key to endpoint.
func (d *Driver) Peers() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.peers)
}

func (d *Driver) IsUp(ctx context.Context) (bool, error) {
	d.record("IsUp")
	if err := d.Faults.Eval(FaultDriverIsUp); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.up, nil
}

func (d *Driver) Up(ctx context.Context) error {
	d.record("Up")
	if err := d.Faults.Eval(FaultDriverUp); err != nil {
		return err
	}
	d.SetUp(true)
	return nil
}

func (d *Driver) Down(ctx context.Context) error {
	d.record("Down")
	if err := d.Faults.Eval(FaultDriverDown); err != nil {
		return err
	}
	d.SetUp(false)
	return nil
}

func (d *Driver) ForceRemove(ctx context.Context) error {
	d.record("ForceRemove")
	if err := d.Faults.Eval(FaultDriverForceRemove); err != nil {
		return err
	}
	d.mu.Lock()
	d.up = false
	clear(d.peers)
	d.mu.Unlock()
	return nil
}

func (d *Driver) AddPeer(ctx context.Context, publicKey, endpoint string) error {
	d.record("AddPeer", publicKey, endpoint)
	if err := d.Faults.Eval(FaultDriverAddPeer, publicKey, endpoint); err != nil {
		return err
	}
	d.mu.Lock()
	d.peers[publicKey] = endpoint
	d.mu.Unlock()
	return nil
}

func (d *Driver) RemovePeer(ctx context.Context, publicKey string) error {
	d.record("RemovePeer", publicKey)
	if err := d.Faults.Eval(FaultDriverRemovePeer, publicKey); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.peers, publicKey)
	d.mu.Unlock()
	return nil
}
