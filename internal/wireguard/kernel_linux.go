//go:build linux

package wireguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Kernel drives a tunnel backed by the Linux kernel WireGuard module.
type Kernel struct {
	iface string
	load  ConfigLoader
	log   *slog.Logger
}

// NewKernel creates a kernel driver for iface whose interface settings come
// from load.
func NewKernel(iface string, load ConfigLoader) *Kernel {
	if iface == "" {
		iface = DefaultInterface
	}
	return &Kernel{
		iface: iface,
		load:  load,
		log:   slog.With("component", "wireguard-kernel", "iface", iface),
	}
}

// New returns the platform's tunnel driver.
func New(iface string, load ConfigLoader) Driver {
	return NewKernel(iface, load)
}

// IsUp reports whether the interface exists and is administratively up.
func (k *Kernel) IsUp(context.Context) (bool, error) {
	link, err := netlink.LinkByName(k.iface)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return false, nil
		}
		return false, fmt.Errorf("find wireguard interface %q: %w", k.iface, err)
	}
	return link.Attrs().Flags&unix.IFF_UP != 0, nil
}

// Up creates the WireGuard interface, sets the private key and listen port,
// assigns addresses, and brings the link up. Existing peers are dropped.
func (k *Kernel) Up(context.Context) error {
	cfg, err := k.load()
	if err != nil {
		return fmt.Errorf("load tunnel config: %w", err)
	}
	s, err := SettingsFromConfig(k.iface, cfg)
	if err != nil {
		return err
	}

	link, err := ensureLink(s.Interface, s.MTU)
	if err != nil {
		return err
	}

	wg, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("create wireguard client: %w", err)
	}
	defer wg.Close()

	wgCfg := wgtypes.Config{
		PrivateKey:   &s.PrivateKey,
		ReplacePeers: true,
	}
	if s.ListenPort > 0 {
		wgCfg.ListenPort = &s.ListenPort
	}
	if err := wg.ConfigureDevice(s.Interface, wgCfg); err != nil {
		return fmt.Errorf("configure wireguard device: %w", err)
	}

	if err := syncAddresses(link, s.Addrs); err != nil {
		return err
	}

	if link.Attrs().Flags&unix.IFF_UP == 0 {
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("set wireguard interface up: %w", err)
		}
	}
	k.log.Debug("wireguard active", "addrs", s.Addrs)
	return nil
}

// Down sets the link down and keeps the interface.
func (k *Kernel) Down(context.Context) error {
	link, err := netlink.LinkByName(k.iface)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("find wireguard interface %q: %w", k.iface, err)
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return fmt.Errorf("set wireguard interface down: %w", err)
	}
	return nil
}

// ForceRemove deletes the WireGuard interface.
func (k *Kernel) ForceRemove(context.Context) error {
	link, err := netlink.LinkByName(k.iface)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("find wireguard interface %q: %w", k.iface, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("delete wireguard interface %q: %w", k.iface, err)
	}
	return nil
}

// AddPeer registers a peer routing all traffic through endpoint.
func (k *Kernel) AddPeer(_ context.Context, publicKey, endpoint string) error {
	pc, err := PeerConfig(publicKey, endpoint)
	if err != nil {
		return err
	}
	return k.configurePeers(pc)
}

// RemovePeer removes the peer with publicKey. Unknown peers are ignored.
func (k *Kernel) RemovePeer(_ context.Context, publicKey string) error {
	pc, err := RemovePeerConfig(publicKey)
	if err != nil {
		return err
	}
	return k.configurePeers(pc)
}

func (k *Kernel) configurePeers(peers ...wgtypes.PeerConfig) error {
	wg, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("create wireguard client: %w", err)
	}
	defer wg.Close()

	if err := wg.ConfigureDevice(k.iface, wgtypes.Config{Peers: peers}); err != nil {
		return fmt.Errorf("configure wireguard peers: %w", err)
	}
	return nil
}

func ensureLink(iface string, mtu int) (netlink.Link, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); !ok {
			return nil, fmt.Errorf("find wireguard interface %q: %w", iface, err)
		}
		link = &netlink.GenericLink{LinkAttrs: netlink.LinkAttrs{Name: iface}, LinkType: "wireguard"}
		if err := netlink.LinkAdd(link); err != nil {
			return nil, fmt.Errorf("create wireguard interface %q: %w", iface, err)
		}
		link, err = netlink.LinkByName(iface)
		if err != nil {
			return nil, fmt.Errorf("refetch wireguard interface %q: %w", iface, err)
		}
	}
	if link.Attrs().MTU != mtu {
		if err := netlink.LinkSetMTU(link, mtu); err != nil {
			return nil, fmt.Errorf("set wireguard mtu on %q: %w", iface, err)
		}
	}
	return link, nil
}

// syncAddresses makes the link's addresses match prefixes exactly.
func syncAddresses(link netlink.Link, prefixes []netip.Prefix) error {
	desired := make(map[netip.Prefix]struct{}, len(prefixes))
	for _, pref := range prefixes {
		if !pref.IsValid() {
			continue
		}
		desired[pref] = struct{}{}
		addr := &netlink.Addr{IPNet: ptrIPNet(prefixToIPNet(pref))}
		if err := netlink.AddrAdd(link, addr); err != nil && !errors.Is(err, unix.EEXIST) {
			return fmt.Errorf("set wireguard address %s: %w", pref, err)
		}
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return fmt.Errorf("list wireguard addresses on %s: %w", link.Attrs().Name, err)
	}
	for _, addr := range addrs {
		if addr.IPNet == nil {
			continue
		}
		pref, err := ipNetToPrefix(*addr.IPNet)
		if err != nil {
			continue
		}
		if _, ok := desired[pref]; ok {
			continue
		}
		if err := netlink.AddrDel(link, &addr); err != nil && !errors.Is(err, unix.EADDRNOTAVAIL) {
			return fmt.Errorf("remove stale wireguard address %s: %w", pref, err)
		}
	}
	return nil
}
