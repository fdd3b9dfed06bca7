package wgconf

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStore loads and saves tunnel configurations as wg-quick files.
type FileStore struct{}

// Load reads and parses the configuration at path.
func (FileStore) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tunnel config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically. The file holds a private key, so it is
// created with mode 0600.
func (FileStore) Save(path string, cfg *Config) error {
	data, err := Encode(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create tunnel config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp tunnel config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp tunnel config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp tunnel config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp tunnel config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace tunnel config: %w", err)
	}
	return nil
}
