package wireguard

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/bennjii/reseda/internal/wgconf"
)

func mustKey(t *testing.T) wgtypes.Key {
	t.Helper()
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k
}

func TestSettingsFromConfig(t *testing.T) {
	key := mustKey(t)
	cfg := &wgconf.Config{Interface: wgconf.Interface{
		PrivateKey: key.String() + "\n",
		Address:    []string{"192.168.69.2/24", "fd00::2"},
		ListenPort: 51821,
	}}

	s, err := SettingsFromConfig("", cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig() error = %v", err)
	}
	if s.Interface != DefaultInterface || s.MTU != DefaultMTU || s.ListenPort != 51821 {
		t.Fatalf("settings = %+v", s)
	}
	if s.PrivateKey != key {
		t.Fatal("private key not parsed")
	}
	want := []netip.Prefix{netip.MustParsePrefix("192.168.69.2/24"), netip.MustParsePrefix("fd00::2/128")}
	if diff := cmp.Diff(want, s.Addrs, cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })); diff != "" {
		t.Fatalf("addrs mismatch (-want +got):\n%s", diff)
	}
}

func TestSettingsFromConfig_Errors(t *testing.T) {
	key := mustKey(t).String()
	tests := map[string]wgconf.Interface{
		"missing key": {},
		"bad key":     {PrivateKey: "not-a-key"},
		"bad address": {PrivateKey: key, Address: []string{"10.0.0.300"}},
		"bad prefix":  {PrivateKey: key, Address: []string{"10.0.0.2/99"}},
	}
	for name, iface := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := SettingsFromConfig("wg0", &wgconf.Config{Interface: iface}); err == nil {
				t.Fatal("SettingsFromConfig() error = nil")
			}
		})
	}
}

func TestPeerConfig(t *testing.T) {
	pub := mustKey(t).PublicKey()

	pc, err := PeerConfig(pub.String(), "127.0.0.1")
	if err != nil {
		t.Fatalf("PeerConfig() error = %v", err)
	}
	if pc.PublicKey != pub {
		t.Fatal("public key mismatch")
	}
	if pc.Endpoint == nil || pc.Endpoint.Port != wgconf.DefaultPort || !pc.Endpoint.IP.Equal([]byte{127, 0, 0, 1}) {
		t.Fatalf("endpoint = %v, want 127.0.0.1:%d", pc.Endpoint, wgconf.DefaultPort)
	}
	if pc.PersistentKeepaliveInterval == nil || *pc.PersistentKeepaliveInterval != 25*time.Second {
		t.Fatalf("keepalive = %v", pc.PersistentKeepaliveInterval)
	}
	var allowed []string
	for _, n := range pc.AllowedIPs {
		allowed = append(allowed, n.String())
	}
	if diff := cmp.Diff([]string{"0.0.0.0/0", "::/0"}, allowed); diff != "" {
		t.Fatalf("allowed ips mismatch (-want +got):\n%s", diff)
	}

	pc, err = PeerConfig(pub.String(), "127.0.0.1:9000")
	if err != nil {
		t.Fatalf("PeerConfig() error = %v", err)
	}
	if pc.Endpoint.Port != 9000 {
		t.Fatalf("endpoint port = %d, want 9000", pc.Endpoint.Port)
	}

	if _, err := PeerConfig("bogus", "127.0.0.1"); err == nil {
		t.Fatal("PeerConfig() with bad key error = nil")
	}
}

func TestIPC(t *testing.T) {
	priv := mustKey(t)
	s := Settings{PrivateKey: priv, ListenPort: 51820}
	got := deviceIPC(s)
	if !strings.HasPrefix(got, "private_key=") || !strings.Contains(got, "listen_port=51820\nreplace_peers=true\n") {
		t.Fatalf("deviceIPC() = %q", got)
	}

	pub := priv.PublicKey()
	pc, err := PeerConfig(pub.String(), "127.0.0.1:51820")
	if err != nil {
		t.Fatal(err)
	}
	got = peerIPC(pc)
	for _, want := range []string{
		"endpoint=127.0.0.1:51820\n",
		"replace_allowed_ips=true\n",
		"allowed_ip=0.0.0.0/0\n",
		"allowed_ip=::/0\n",
		"persistent_keepalive_interval=25\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("peerIPC() = %q, missing %q", got, want)
		}
	}

	rm, err := RemovePeerConfig(pub.String())
	if err != nil {
		t.Fatal(err)
	}
	if got := peerIPC(rm); !strings.HasSuffix(got, "\nremove=true\n") || strings.Contains(got, "endpoint") {
		t.Fatalf("peerIPC(remove) = %q", got)
	}
}

func TestAddressCommands(t *testing.T) {
	v4 := netip.MustParsePrefix("192.168.69.2/24")
	v6 := netip.MustParsePrefix("fd00::2/128")

	cmds, err := addressCommands("darwin", "utun5", v4)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"ifconfig", "utun5", "inet", "192.168.69.2/24", "192.168.69.2", "alias"},
		{"ifconfig", "utun5", "up"},
	}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Fatalf("darwin v4 mismatch (-want +got):\n%s", diff)
	}

	cmds, err = addressCommands("windows", "reseda0", v4)
	if err != nil {
		t.Fatal(err)
	}
	want = [][]string{{"netsh", "interface", "ipv4", "add", "address", "reseda0", "192.168.69.2", "255.255.255.0"}}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Fatalf("windows v4 mismatch (-want +got):\n%s", diff)
	}

	cmds, err = addressCommands("darwin", "utun5", v6)
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 || cmds[0][2] != "inet6" || cmds[0][5] != "128" {
		t.Fatalf("darwin v6 = %v", cmds)
	}

	if _, err := addressCommands("plan9", "x", v4); err == nil {
		t.Fatal("addressCommands(plan9) error = nil")
	}
}
