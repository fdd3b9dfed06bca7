// Package wireguard contains the tunnel drivers that apply a tunnel
// configuration to a local WireGuard device.
//
// Concrete drivers:
//   - Kernel (linux): netlink link management and wgctrl device config
//   - Userspace (other platforms): wireguard-go over a TUN device
//
// Both implement Driver and read the interface settings from the tunnel
// configuration file each time the tunnel is brought up.
package wireguard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/bennjii/reseda/internal/wgconf"
)

const (
	// DefaultInterface is the tunnel interface name used when none is configured.
	DefaultInterface = "reseda0"
	// DefaultMTU matches wg-quick's default for a tunnel over IPv4/IPv6.
	DefaultMTU = 1420

	peerKeepalive = 25 * time.Second
)

var defaultAllowedIPs = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/0"),
	netip.MustParsePrefix("::/0"),
}

// Driver controls a local WireGuard tunnel.
type Driver interface {
	IsUp(ctx context.Context) (bool, error)
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	ForceRemove(ctx context.Context) error
	AddPeer(ctx context.Context, publicKey, endpoint string) error
	RemovePeer(ctx context.Context, publicKey string) error
}

// ConfigLoader returns the current tunnel configuration.
type ConfigLoader func() (*wgconf.Config, error)

// FileConfig loads the tunnel configuration from a wg-quick file.
func FileConfig(path string) ConfigLoader {
	return func() (*wgconf.Config, error) {
		return wgconf.FileStore{}.Load(path)
	}
}

// Settings holds the interface-level configuration of a WireGuard device.
type Settings struct {
	Interface  string
	MTU        int
	PrivateKey wgtypes.Key
	ListenPort int
	Addrs      []netip.Prefix
}

// SettingsFromConfig converts the [Interface] section of cfg into device
// settings for iface.
func SettingsFromConfig(iface string, cfg *wgconf.Config) (Settings, error) {
	if iface == "" {
		iface = DefaultInterface
	}
	s := Settings{
		Interface:  iface,
		MTU:        cfg.Interface.MTU,
		ListenPort: cfg.Interface.ListenPort,
	}
	if s.MTU <= 0 {
		s.MTU = DefaultMTU
	}

	key, err := wgtypes.ParseKey(strings.TrimSpace(cfg.Interface.PrivateKey))
	if err != nil {
		return Settings{}, fmt.Errorf("parse private key: %w", err)
	}
	s.PrivateKey = key

	for _, raw := range cfg.Interface.Address {
		pref, err := parseAddress(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("parse interface address %q: %w", raw, err)
		}
		s.Addrs = append(s.Addrs, pref)
	}
	return s, nil
}

// parseAddress accepts either a prefix or a bare address, which gets a host
// prefix.
func parseAddress(raw string) (netip.Prefix, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "/") {
		return netip.ParsePrefix(raw)
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// PeerConfig builds the device configuration for a relay peer that routes
// all traffic. Endpoints without a port use the WireGuard default port.
func PeerConfig(publicKey, endpoint string) (wgtypes.PeerConfig, error) {
	key, err := wgtypes.ParseKey(strings.TrimSpace(publicKey))
	if err != nil {
		return wgtypes.PeerConfig{}, fmt.Errorf("parse peer public key: %w", err)
	}
	pc := wgtypes.PeerConfig{
		PublicKey:                   key,
		ReplaceAllowedIPs:           true,
		PersistentKeepaliveInterval: ptrDuration(peerKeepalive),
	}
	for _, pref := range defaultAllowedIPs {
		pc.AllowedIPs = append(pc.AllowedIPs, prefixToIPNet(pref))
	}
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		addr, err := net.ResolveUDPAddr("udp", wgconf.EndpointWithPort(endpoint))
		if err != nil {
			return wgtypes.PeerConfig{}, fmt.Errorf("resolve peer endpoint %q: %w", endpoint, err)
		}
		pc.Endpoint = addr
	}
	return pc, nil
}

// RemovePeerConfig builds the device configuration that removes a peer.
func RemovePeerConfig(publicKey string) (wgtypes.PeerConfig, error) {
	key, err := wgtypes.ParseKey(strings.TrimSpace(publicKey))
	if err != nil {
		return wgtypes.PeerConfig{}, fmt.Errorf("parse peer public key: %w", err)
	}
	return wgtypes.PeerConfig{PublicKey: key, Remove: true}, nil
}

// deviceIPC renders the interface part of a wireguard-go UAPI set request.
func deviceIPC(s Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "private_key=%x\nlisten_port=%d\nreplace_peers=true\n", s.PrivateKey[:], s.ListenPort)
	return b.String()
}

// peerIPC renders one peer of a wireguard-go UAPI set request.
func peerIPC(pc wgtypes.PeerConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "public_key=%x\n", pc.PublicKey[:])
	if pc.Remove {
		b.WriteString("remove=true\n")
		return b.String()
	}
	if pc.Endpoint != nil {
		fmt.Fprintf(&b, "endpoint=%s\n", pc.Endpoint.String())
	}
	if pc.ReplaceAllowedIPs {
		b.WriteString("replace_allowed_ips=true\n")
	}
	for _, ipn := range pc.AllowedIPs {
		fmt.Fprintf(&b, "allowed_ip=%s\n", ipn.String())
	}
	if pc.PersistentKeepaliveInterval != nil {
		fmt.Fprintf(&b, "persistent_keepalive_interval=%d\n", int(pc.PersistentKeepaliveInterval.Seconds()))
	}
	return b.String()
}

func ptrDuration(d time.Duration) *time.Duration { return &d }
func ptrIPNet(n net.IPNet) *net.IPNet             { return &n }

func prefixToIPNet(pref netip.Prefix) net.IPNet {
	bits := 32
	if pref.Addr().Is6() {
		bits = 128
	}
	return net.IPNet{IP: pref.Addr().AsSlice(), Mask: net.CIDRMask(pref.Bits(), bits)}
}

func ipNetToPrefix(n net.IPNet) (netip.Prefix, error) {
	a, ok := netip.AddrFromSlice(n.IP)
	if !ok {
		return netip.Prefix{}, fmt.Errorf("invalid IP %v", n.IP)
	}
	ones, _ := n.Mask.Size()
	return netip.PrefixFrom(a.Unmap(), ones), nil
}
