package wireguard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os/exec"
)

// Runner executes a privileged network configuration command.
// Production: ExecRunner
// Testing: a recorder
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command directly and returns its combined output.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// addressCommands returns the commands that assign pref to iface on goos.
func addressCommands(goos, iface string, pref netip.Prefix) ([][]string, error) {
	addr := pref.Addr().String()
	switch goos {
	case "darwin", "freebsd", "openbsd":
		if pref.Addr().Is6() {
			return [][]string{{"ifconfig", iface, "inet6", addr, "prefixlen", fmt.Sprint(pref.Bits()), "alias"}}, nil
		}
		// Point-to-point interfaces take a destination; the peer side is the
		// interface address itself.
		return [][]string{
			{"ifconfig", iface, "inet", pref.String(), addr, "alias"},
			{"ifconfig", iface, "up"},
		}, nil
	case "windows":
		if pref.Addr().Is6() {
			return [][]string{{"netsh", "interface", "ipv6", "add", "address", iface, pref.String()}}, nil
		}
		mask := net.IP(net.CIDRMask(pref.Bits(), 32)).String()
		return [][]string{{"netsh", "interface", "ipv4", "add", "address", iface, addr, mask}}, nil
	default:
		return nil, fmt.Errorf("assigning interface addresses is not supported on %s", goos)
	}
}
