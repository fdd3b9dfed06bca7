package wgconf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleConfig = `# managed by reseda
[Interface]
PrivateKey = yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk=
Address = 192.168.69.2/24, fd00::2/64
DNS = 1.1.1.1
ListenPort = 51820
PostUp = iptables -A FORWARD -i %i -j ACCEPT

[Peer]
PublicKey = xTIBA5rboUvnH4htodjb6e697QjLERt1NAB4mZqp8Dg=
AllowedIPs = 0.0.0.0/0, ::/0
Endpoint = 5.9.85.203:51820
PersistentKeepalive = 25
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := &Config{
		Interface: Interface{
			PrivateKey: "yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk=",
			Address:    []string{"192.168.69.2/24", "fd00::2/64"},
			DNS:        []string{"1.1.1.1"},
			ListenPort: 51820,
		},
		Peers: []Peer{{
			PublicKey:           "xTIBA5rboUvnH4htodjb6e697QjLERt1NAB4mZqp8Dg=",
			AllowedIPs:          []string{"0.0.0.0/0", "::/0"},
			Endpoint:            "5.9.85.203:51820",
			PersistentKeepalive: 25,
		}},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_CaseInsensitive(t *testing.T) {
	data := "[interface]\nprivatekey = abc=\naddress = 10.0.0.2/32\n\n[peer]\npublickey = def=\n"
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Interface.PrivateKey != "abc=" {
		t.Errorf("private key = %q, want abc=", cfg.Interface.PrivateKey)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].PublicKey != "def=" {
		t.Errorf("peers = %+v, want one peer def=", cfg.Peers)
	}
}

func TestParse_NoPeers(t *testing.T) {
	cfg, err := Parse([]byte("[Interface]\nPrivateKey = abc=\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cfg.Peers) != 0 {
		t.Fatalf("peers = %+v, want none", cfg.Peers)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "missing interface", data: "[Peer]\nPublicKey = abc=\n"},
		{name: "duplicate interface", data: "[Interface]\nPrivateKey = a=\n[Interface]\nPrivateKey = b=\n"},
		{name: "bad listen port", data: "[Interface]\nPrivateKey = a=\nListenPort = nope\n"},
		{name: "bad keepalive", data: "[Interface]\nPrivateKey = a=\n[Peer]\nPublicKey = b=\nPersistentKeepalive = x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Fatal("Parse() expected error")
			}
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	cfg := testConfig(
		Peer{PublicKey: "a=", AllowedIPs: []string{"0.0.0.0/0"}, Endpoint: "1.2.3.4:51820", PersistentKeepalive: 25},
		Peer{PublicKey: "b=", AllowedIPs: []string{"10.0.0.0/8", "::/0"}},
	)
	cfg.Interface.ListenPort = 41000
	cfg.Interface.MTU = 1420
	cfg.Interface.PublicKey = "derived="

	data, err := Encode(cfg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if strings.Contains(string(data), "derived=") {
		t.Fatalf("encoded config contains the derived public key:\n%s", data)
	}
	if got := strings.Count(string(data), "[Peer]"); got != 2 {
		t.Fatalf("encoded config has %d [Peer] sections, want 2:\n%s", got, data)
	}

	back, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Encode()) error = %v\n%s", err, data)
	}

	want := cfg.Clone()
	want.Interface.PublicKey = ""
	if diff := cmp.Diff(&want, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wg0.conf")
	store := FileStore{}
	cfg := testConfig(Peer{PublicKey: "a=", Endpoint: "1.2.3.4:51820"})

	if err := store.Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config mode = %o, want 600", perm)
	}

	got, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("config dir has %d entries, want only the config file", len(entries))
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	_, err := FileStore{}.Load(filepath.Join(t.TempDir(), "missing.conf"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load() error = %v, want not-exist", err)
	}
}
