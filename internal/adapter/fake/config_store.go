package fake

import (
	"fmt"
	"io/fs"
	"sync"

	"github.com/bennjii/reseda/internal/adapter/fake/fault"
	"github.com/bennjii/reseda/internal/connection"
	"github.com/bennjii/reseda/internal/wgconf"
)

var _ connection.ConfigStore = (*ConfigStore)(nil)

const (
	FaultStoreLoad = "store.load"
	FaultStoreSave = "store.save"
)

// ConfigStore keeps tunnel configs in memory keyed by path. Load and Save copy
// so callers never share state with the store.
type ConfigStore struct {
	CallRecorder
	Faults *fault.Injector

	mu      sync.Mutex
	configs map[string]wgconf.Config
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{Faults: fault.NewInjector(), configs: make(map[string]wgconf.Config)}
}

// Put stores cfg at path without recording a call.
func (s *ConfigStore) Put(path string, cfg *wgconf.Config) {
	s.mu.Lock()
	s.configs[path] = cfg.Clone()
	s.mu.Unlock()
}

// Get returns a copy of the config at path.
func (s *ConfigStore) Get(path string) (wgconf.Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[path]
	if !ok {
		return wgconf.Config{}, false
	}
	return cfg.Clone(), true
}

func (s *ConfigStore) Load(path string) (*wgconf.Config, error) {
	s.record("Load", path)
	if err := s.Faults.Eval(FaultStoreLoad, path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[path]
	if !ok {
		return nil, fmt.Errorf("read tunnel config %s: %w", path, fs.ErrNotExist)
	}
	out := cfg.Clone()
	return &out, nil
}

func (s *ConfigStore) Save(path string, cfg *wgconf.Config) error {
	s.record("Save", path, cfg.Clone())
	if err := s.Faults.Eval(FaultStoreSave, path); err != nil {
		return err
	}
	s.Put(path, cfg)
	return nil
}
