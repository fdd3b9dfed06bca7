// Package config handles the reseda client configuration.
//
// Config is stored at $XDG_CONFIG_HOME/reseda/config.yaml (defaults to
// ~/.config/reseda/config.yaml). A missing file yields the defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bennjii/reseda"
)

const (
	DefaultRelayDomain     = "reseda.app"
	DefaultCoordination    = "192.168.69.1:443"
	DefaultInterface       = "reseda0"
	DefaultVerifyTimeout   = 30 * time.Second
	DefaultHelperSocket    = "/var/run/reseda/helper.sock"
	DefaultHelperTokenPath = "/var/lib/reseda/private/helper.token"
	DefaultNTPServer       = "pool.ntp.org"
)

// Config is the user configuration. CLI flags override individual fields.
type Config struct {
	Identity            reseda.Identity   `yaml:"identity"`
	RelayDomain         string            `yaml:"relay-domain"`
	CoordinationAddress string            `yaml:"coordination-address"`
	Interface           string            `yaml:"interface"`
	TunnelConfig        string            `yaml:"tunnel-config"`
	VerifyTimeout       time.Duration     `yaml:"verify-timeout"`
	Helper              Helper            `yaml:"helper"`
	HistoryDB           string            `yaml:"history-db"`
	NTPServer           string            `yaml:"ntp-server"`
	MetricsAddress      string            `yaml:"metrics-address,omitempty"`
	LogLevel            string            `yaml:"log-level"`
	LogFormat           string            `yaml:"log-format,omitempty"`
	Locations           []reseda.Location `yaml:"locations,omitempty"`
}

// Helper says whether and how to reach the privileged helper.
type Helper struct {
	Enabled   bool   `yaml:"enabled"`
	Socket    string `yaml:"socket"`
	TokenPath string `yaml:"token-path"`
}

// Dir returns the reseda config directory. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/reseda.
func Dir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "reseda")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "reseda")
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		RelayDomain:         DefaultRelayDomain,
		CoordinationAddress: DefaultCoordination,
		Interface:           DefaultInterface,
		TunnelConfig:        filepath.Join(Dir(), "wg0.conf"),
		VerifyTimeout:       DefaultVerifyTimeout,
		Helper: Helper{
			Socket:    DefaultHelperSocket,
			TokenPath: DefaultHelperTokenPath,
		},
		HistoryDB: filepath.Join(Dir(), "history.db"),
		NTPServer: DefaultNTPServer,
		LogLevel:  "info",
	}
}

// Load reads the config file at path, or Path() when path is empty. Fields
// the file leaves out keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the fields that have no usable zero value.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RelayDomain) == "" {
		return fmt.Errorf("relay-domain is required")
	}
	if _, _, err := net.SplitHostPort(c.CoordinationAddress); err != nil {
		return fmt.Errorf("coordination-address %q: %w", c.CoordinationAddress, err)
	}
	if strings.TrimSpace(c.TunnelConfig) == "" {
		return fmt.Errorf("tunnel-config is required")
	}
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("verify-timeout must be positive")
	}
	if c.Helper.Enabled && strings.TrimSpace(c.Helper.Socket) == "" {
		return fmt.Errorf("helper.socket is required when the helper is enabled")
	}
	seen := make(map[string]struct{}, len(c.Locations))
	for _, loc := range c.Locations {
		if loc.ID == "" {
			return fmt.Errorf("location id is required")
		}
		if _, ok := seen[loc.ID]; ok {
			return fmt.Errorf("location %q is listed twice", loc.ID)
		}
		seen[loc.ID] = struct{}{}
	}
	return nil
}

// Location resolves a location by id. Unknown ids are returned as a bare
// location since the relay URL only needs the id.
func (c *Config) Location(id string) reseda.Location {
	if loc, ok := reseda.FindByID(c.Locations, id); ok {
		return loc
	}
	return reseda.Location{ID: id}
}
