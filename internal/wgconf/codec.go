package wgconf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

const (
	sectionInterface = "Interface"
	sectionPeer      = "Peer"
)

// Parse decodes a wg-quick style configuration. Section and key names are
// matched case-insensitively; unknown keys (PostUp, Table, ...) are ignored.
func Parse(data []byte) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowNonUniqueSections: true,
		InsensitiveSections:    true,
		InsensitiveKeys:        true,
		IgnoreInlineComment:    false,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("parse tunnel config: %w", err)
	}

	ifaces, err := f.SectionsByName(sectionInterface)
	if err != nil || len(ifaces) == 0 {
		return nil, fmt.Errorf("parse tunnel config: missing [%s] section", sectionInterface)
	}
	if len(ifaces) > 1 {
		return nil, fmt.Errorf("parse tunnel config: duplicate [%s] section", sectionInterface)
	}

	cfg := &Config{}
	sec := ifaces[0]
	cfg.Interface.PrivateKey = strings.TrimSpace(sec.Key("PrivateKey").String())
	cfg.Interface.Address = listValue(sec, "Address")
	cfg.Interface.DNS = listValue(sec, "DNS")
	if cfg.Interface.ListenPort, err = intValue(sec, "ListenPort"); err != nil {
		return nil, err
	}
	if cfg.Interface.MTU, err = intValue(sec, "MTU"); err != nil {
		return nil, err
	}

	// SectionsByName errors when there are no peers, which is a valid config.
	peers, _ := f.SectionsByName(sectionPeer)
	for i, ps := range peers {
		p := Peer{
			PublicKey:  strings.TrimSpace(ps.Key("PublicKey").String()),
			AllowedIPs: listValue(ps, "AllowedIPs"),
			Endpoint:   strings.TrimSpace(ps.Key("Endpoint").String()),
		}
		if p.PersistentKeepalive, err = intValue(ps, "PersistentKeepalive"); err != nil {
			return nil, fmt.Errorf("peer %d: %w", i, err)
		}
		cfg.Peers = append(cfg.Peers, p)
	}
	return cfg, nil
}

// Encode renders c in wg-quick format. The derived public key is not written.
func Encode(c *Config) ([]byte, error) {
	f := ini.Empty(ini.LoadOptions{AllowNonUniqueSections: true})

	sec, err := f.NewSection(sectionInterface)
	if err != nil {
		return nil, fmt.Errorf("encode tunnel config: %w", err)
	}
	keys := []keyValue{
		{"PrivateKey", c.Interface.PrivateKey},
		{"Address", strings.Join(c.Interface.Address, ", ")},
		{"DNS", strings.Join(c.Interface.DNS, ", ")},
		{"ListenPort", intString(c.Interface.ListenPort)},
		{"MTU", intString(c.Interface.MTU)},
	}
	if err := setKeys(sec, keys); err != nil {
		return nil, err
	}

	for _, p := range c.Peers {
		ps, err := f.NewSection(sectionPeer)
		if err != nil {
			return nil, fmt.Errorf("encode tunnel config: %w", err)
		}
		keys := []keyValue{
			{"PublicKey", p.PublicKey},
			{"AllowedIPs", strings.Join(p.AllowedIPs, ", ")},
			{"Endpoint", p.Endpoint},
			{"PersistentKeepalive", intString(p.PersistentKeepalive)},
		}
		if err := setKeys(ps, keys); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode tunnel config: %w", err)
	}
	return buf.Bytes(), nil
}

// String renders c in wg-quick format, or "" if encoding fails.
func (c *Config) String() string {
	data, err := Encode(c)
	if err != nil {
		return ""
	}
	return string(data)
}

type keyValue struct {
	name  string
	value string
}

func setKeys(sec *ini.Section, keys []keyValue) error {
	for _, kv := range keys {
		if kv.value == "" {
			continue
		}
		if _, err := sec.NewKey(kv.name, kv.value); err != nil {
			return fmt.Errorf("encode %s.%s: %w", sec.Name(), kv.name, err)
		}
	}
	return nil
}

func listValue(sec *ini.Section, name string) []string {
	raw := sec.Key(name).String()
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func intValue(sec *ini.Section, name string) (int, error) {
	raw := strings.TrimSpace(sec.Key(name).String())
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	return n, nil
}

func intString(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
