//go:build !linux

package wireguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"
)

// TUNFactory creates the TUN device backing the tunnel and returns its name.
type TUNFactory func(name string, mtu int) (tun.Device, string, error)

// DefaultTUN creates an OS TUN device. macOS only accepts utun names.
func DefaultTUN(name string, mtu int) (tun.Device, string, error) {
	if runtime.GOOS == "darwin" {
		name = "utun"
	}
	dev, err := tun.CreateTUN(name, mtu)
	if err != nil {
		return nil, "", err
	}
	actual, err := dev.Name()
	if err != nil {
		_ = dev.Close()
		return nil, "", fmt.Errorf("read tun name: %w", err)
	}
	return dev, actual, nil
}

// Userspace drives a tunnel backed by wireguard-go.
type Userspace struct {
	iface  string
	load   ConfigLoader
	newTUN TUNFactory
	run    Runner

	mu     sync.Mutex
	dev    *device.Device
	ifName string
}

// NewUserspace creates a userspace driver. Interface settings come from load.
func NewUserspace(iface string, load ConfigLoader, newTUN TUNFactory, run Runner) *Userspace {
	if iface == "" {
		iface = DefaultInterface
	}
	if newTUN == nil {
		newTUN = DefaultTUN
	}
	if run == nil {
		run = ExecRunner
	}
	return &Userspace{iface: iface, load: load, newTUN: newTUN, run: run}
}

// New returns the platform's tunnel driver.
func New(iface string, load ConfigLoader) Driver {
	return NewUserspace(iface, load, nil, nil)
}

// IsUp reports whether this process runs an active device.
func (u *Userspace) IsUp(context.Context) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dev != nil, nil
}

// Up creates the userspace device, configures it, and brings it up. It is a
// no-op when the device is already up.
func (u *Userspace) Up(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.dev != nil {
		return nil
	}

	cfg, err := u.load()
	if err != nil {
		return fmt.Errorf("load tunnel config: %w", err)
	}
	s, err := SettingsFromConfig(u.iface, cfg)
	if err != nil {
		return err
	}

	tunDev, tunName, err := u.newTUN(s.Interface, s.MTU)
	if err != nil {
		return fmt.Errorf("create tun device: %w", err)
	}

	log := slog.With("component", "wireguard-userspace", "iface", tunName)
	log.Debug("tun device ready", "mtu", s.MTU)

	dev := device.NewDevice(tunDev, conn.NewDefaultBind(), device.NewLogger(device.LogLevelSilent, ""))
	if err := dev.IpcSet(deviceIPC(s)); err != nil {
		dev.Close()
		return fmt.Errorf("configure wireguard device: %w", err)
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		return fmt.Errorf("bring up wireguard device: %w", err)
	}

	for _, pref := range s.Addrs {
		cmds, err := addressCommands(runtime.GOOS, tunName, pref)
		if err != nil {
			dev.Close()
			return err
		}
		for _, cmd := range cmds {
			if out, err := u.run(ctx, cmd[0], cmd[1:]...); err != nil {
				dev.Close()
				return fmt.Errorf("configure %s address %s: %w: %s", tunName, pref, err, strings.TrimSpace(string(out)))
			}
		}
	}

	u.dev = dev
	u.ifName = tunName
	log.Debug("wireguard active")
	return nil
}

// Down closes the device and its TUN.
func (u *Userspace) Down(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.dev == nil {
		return nil
	}
	u.dev.Close()
	u.dev = nil
	u.ifName = ""
	return nil
}

// ForceRemove is Down: the TUN disappears with the device.
func (u *Userspace) ForceRemove(ctx context.Context) error {
	return u.Down(ctx)
}

// AddPeer registers a peer routing all traffic through endpoint.
func (u *Userspace) AddPeer(_ context.Context, publicKey, endpoint string) error {
	pc, err := PeerConfig(publicKey, endpoint)
	if err != nil {
		return err
	}
	return u.ipcSet(peerIPC(pc))
}

// RemovePeer removes the peer with publicKey.
func (u *Userspace) RemovePeer(_ context.Context, publicKey string) error {
	pc, err := RemovePeerConfig(publicKey)
	if err != nil {
		return err
	}
	return u.ipcSet(peerIPC(pc))
}

var errNotUp = errors.New("wireguard not up")

func (u *Userspace) ipcSet(conf string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.dev == nil {
		return errNotUp
	}
	if err := u.dev.IpcSet(conf); err != nil {
		return fmt.Errorf("update wireguard config: %w", err)
	}
	return nil
}
