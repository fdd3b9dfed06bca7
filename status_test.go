package reseda

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/bennjii/reseda/internal/wgconf"
)

func TestNewStatus_ConnectedMatchesState(t *testing.T) {
	states := []ConnectionState{Disconnected, Connected, Connecting, Error, Disconnecting, Finishing}
	for _, st := range states {
		s := NewStatus(st)
		if s.Connected != (st == Connected) {
			t.Errorf("NewStatus(%s).Connected = %v", st, s.Connected)
		}
		if s.Protocol != Protocol {
			t.Errorf("NewStatus(%s).Protocol = %q, want %q", st, s.Protocol, Protocol)
		}
	}
}

func TestConnectionState_String(t *testing.T) {
	tests := map[ConnectionState]string{
		Disconnected:        "disconnected",
		Connected:           "connected",
		Connecting:          "connecting",
		Error:               "error",
		Disconnecting:       "disconnecting",
		Finishing:           "finishing",
		ConnectionState(42): "unknown",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", uint8(st), got, want)
		}
	}
}

func TestWithConfig_Snapshot(t *testing.T) {
	cfg := &wgconf.Config{
		Interface: wgconf.Interface{PrivateKey: "k=", Address: []string{"192.168.69.2/24"}},
		Peers:     []wgconf.Peer{{PublicKey: "spk=", Endpoint: "5.9.85.203:51820"}},
	}
	s := NewStatus(Connected).WithConfig(cfg)

	cfg.Peers[0].Endpoint = "changed"
	cfg.Interface.Address[0] = "changed"

	if s.Config.Peers[0].Endpoint != "5.9.85.203:51820" {
		t.Fatalf("snapshot endpoint = %q, want original", s.Config.Peers[0].Endpoint)
	}
	if s.Config.Interface.Address[0] != "192.168.69.2/24" {
		t.Fatalf("snapshot address = %q, want original", s.Config.Interface.Address[0])
	}
	if !strings.Contains(s.ConfigText, "[Peer]") {
		t.Fatalf("ConfigText = %q, want wg-quick text", s.ConfigText)
	}
}

func TestConnectionStatus_JSONFieldNames(t *testing.T) {
	s := NewStatus(Connecting)
	s.Message = "Publishing"
	s.ConnectionID = "id-1"

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"protocol", "connection", "connected", "message", "connection_id", "config"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("encoded status missing %q: %s", key, data)
		}
	}
	if raw["connection"] != float64(Connecting) {
		t.Errorf("connection = %v, want %d", raw["connection"], Connecting)
	}
}

func TestFindByHost(t *testing.T) {
	pool := []Location{
		{ID: "de-1", Hostname: "5.9.85.203", Country: "Germany"},
		{ID: "us-1", Hostname: "vpn.us.example", Country: "United States"},
	}

	if loc, ok := FindByHost(pool, "VPN.us.example"); !ok || loc.ID != "us-1" {
		t.Fatalf("FindByHost() = %+v, %v, want us-1", loc, ok)
	}
	if _, ok := FindByHost(pool, "10.0.0.1"); ok {
		t.Fatal("FindByHost() matched an unknown host")
	}
	if _, ok := FindByHost(pool, ""); ok {
		t.Fatal("FindByHost() matched an empty host")
	}
	if loc, ok := FindByID(pool, "de-1"); !ok || loc.Hostname != "5.9.85.203" {
		t.Fatalf("FindByID() = %+v, %v", loc, ok)
	}
}
