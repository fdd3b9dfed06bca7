// Package wgconf holds the local WireGuard tunnel configuration: the interface
// settings and the peer list, plus the wg-quick text encoding used to persist
// them.
package wgconf

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DefaultPort is the WireGuard port assumed for endpoints that omit one.
const DefaultPort = 51820

// ErrPeerExists is returned by AddPeer when a peer with the same public key is
// already configured.
var ErrPeerExists = errors.New("peer already exists")

// Interface is the [Interface] section of a tunnel configuration.
type Interface struct {
	PrivateKey string   `json:"private_key"`
	Address    []string `json:"address,omitempty"`
	DNS        []string `json:"dns,omitempty"`
	ListenPort int      `json:"listen_port,omitempty"`
	MTU        int      `json:"mtu,omitempty"`

	// PublicKey is derived from PrivateKey at runtime and never written to disk.
	PublicKey string `json:"public_key,omitempty"`
}

// Peer is a single [Peer] section.
type Peer struct {
	PublicKey           string   `json:"public_key"`
	AllowedIPs          []string `json:"allowed_ips,omitempty"`
	Endpoint            string   `json:"endpoint,omitempty"`
	PersistentKeepalive int      `json:"persistent_keepalive,omitempty"`
}

// Config is an in-memory tunnel configuration.
type Config struct {
	Interface Interface `json:"interface"`
	Peers     []Peer    `json:"peers"`
}

// AddPeer appends p to the peer list.
func (c *Config) AddPeer(p Peer) error {
	key := strings.TrimSpace(p.PublicKey)
	if key == "" {
		return fmt.Errorf("peer public key is required")
	}
	if c.peerIndex(key) >= 0 {
		return fmt.Errorf("add peer %s: %w", key, ErrPeerExists)
	}
	p.PublicKey = key
	c.Peers = append(c.Peers, p)
	return nil
}

// RemovePeer removes the peer with the given public key. It reports whether a
// peer was removed.
func (c *Config) RemovePeer(publicKey string) bool {
	i := c.peerIndex(strings.TrimSpace(publicKey))
	if i < 0 {
		return false
	}
	c.Peers = slices.Delete(c.Peers, i, i+1)
	return true
}

// ClearPeers removes every configured peer and returns how many were removed.
// Calling it on an empty peer list is a no-op.
func (c *Config) ClearPeers() int {
	keys := make([]string, 0, len(c.Peers))
	for _, p := range c.Peers {
		keys = append(keys, p.PublicKey)
	}
	removed := 0
	for _, k := range keys {
		if c.RemovePeer(k) {
			removed++
		}
	}
	// Peers without a key can't be addressed by RemovePeer.
	removed += len(c.Peers)
	c.Peers = nil
	return removed
}

// FirstPeerHost returns the host part of the first peer's endpoint, or "" when
// there is no peer or the endpoint is empty.
func (c *Config) FirstPeerHost() string {
	if len(c.Peers) == 0 {
		return ""
	}
	return EndpointHost(c.Peers[0].Endpoint)
}

// Clone returns a deep copy of c.
func (c *Config) Clone() Config {
	if c == nil {
		return Config{}
	}
	out := Config{Interface: c.Interface}
	out.Interface.Address = slices.Clone(c.Interface.Address)
	out.Interface.DNS = slices.Clone(c.Interface.DNS)
	if len(c.Peers) > 0 {
		out.Peers = make([]Peer, len(c.Peers))
		for i, p := range c.Peers {
			p.AllowedIPs = slices.Clone(p.AllowedIPs)
			out.Peers[i] = p
		}
	}
	return out
}

// Validate checks the fields a tunnel needs before it can be brought up.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Interface.PrivateKey) == "" {
		return fmt.Errorf("interface private key is required")
	}
	if c.Interface.ListenPort < 0 {
		return fmt.Errorf("listen port must not be negative")
	}
	for i, p := range c.Peers {
		if strings.TrimSpace(p.PublicKey) == "" {
			return fmt.Errorf("peer %d has empty public key", i)
		}
		for _, ip := range p.AllowedIPs {
			if strings.TrimSpace(ip) == "" {
				return fmt.Errorf("peer %d has empty allowed IP", i)
			}
		}
		if p.PersistentKeepalive < 0 {
			return fmt.Errorf("peer %d has negative keepalive", i)
		}
	}
	return nil
}

func (c *Config) peerIndex(publicKey string) int {
	if publicKey == "" {
		return -1
	}
	for i, p := range c.Peers {
		if p.PublicKey == publicKey {
			return i
		}
	}
	return -1
}
