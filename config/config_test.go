package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bennjii/reseda"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasSuffix(cfg.TunnelConfig, filepath.Join("reseda", "wg0.conf")) {
		t.Fatalf("tunnel config = %q", cfg.TunnelConfig)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "reseda", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data := `identity:
  id: u1
  name: Ben
verify-timeout: 45s
helper:
  enabled: true
locations:
  - id: fra1
    hostname: 1.2.3.4
    country: DE
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Identity != (reseda.Identity{ID: "u1", Name: "Ben"}) {
		t.Errorf("identity = %+v", cfg.Identity)
	}
	if cfg.VerifyTimeout != 45*time.Second {
		t.Errorf("verify timeout = %v", cfg.VerifyTimeout)
	}
	if !cfg.Helper.Enabled || cfg.Helper.Socket != DefaultHelperSocket {
		t.Errorf("helper = %+v, want enabled with default socket", cfg.Helper)
	}
	if cfg.RelayDomain != DefaultRelayDomain {
		t.Errorf("relay domain = %q, want default", cfg.RelayDomain)
	}
	if got := cfg.Location("fra1"); got.Hostname != "1.2.3.4" || got.Country != "DE" {
		t.Errorf("Location(fra1) = %+v", got)
	}
	if got := cfg.Location("nyc1"); got != (reseda.Location{ID: "nyc1"}) {
		t.Errorf("Location(nyc1) = %+v, want bare id", got)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Identity = reseda.Identity{ID: "u1"}
	cfg.MetricsAddress = "127.0.0.1:9100"
	cfg.Locations = []reseda.Location{{ID: "fra1", Hostname: "1.2.3.4"}}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":            "identity: [",
		"bad coordination":    "coordination-address: 192.168.69.1",
		"zero verify timeout": "verify-timeout: 0s",
		"duplicate location":  "locations:\n  - id: a\n  - id: a\n",
		"empty relay domain":  "relay-domain: ''",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("Load() error = nil")
			}
		})
	}
}
