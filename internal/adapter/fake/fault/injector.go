// Package fault injects errors into fake adapters at named points such as
// "driver.add_peer" or "store.save".
package fault

import (
	"fmt"
	"sync"
)

// Hook inspects the arguments of a call and returns an error to fail it.
type Hook func(args ...any) error

type point struct {
	once   []error
	always error
	hook   Hook
	hits   int
}

// Injector holds per-point faults. A nil *Injector never fails.
type Injector struct {
	mu     sync.Mutex
	points map[string]*point
}

func NewInjector() *Injector {
	return &Injector{points: make(map[string]*point)}
}

// FailOnce queues err for the next evaluation of name.
func (i *Injector) FailOnce(name string, err error) {
	if i == nil || name == "" || err == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	p := i.point(name)
	p.once = append(p.once, err)
}

// FailAlways fails every evaluation of name with err.
func (i *Injector) FailAlways(name string, err error) {
	if i == nil || name == "" || err == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.point(name).always = err
}

// SetHook installs an argument-aware hook for name.
func (i *Injector) SetHook(name string, hook Hook) {
	if i == nil || name == "" || hook == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.point(name).hook = hook
}

// Clear removes the faults configured for name.
func (i *Injector) Clear(name string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.points, name)
}

// Reset removes every configured fault.
func (i *Injector) Reset() {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.points = make(map[string]*point)
	i.mu.Unlock()
}

// Hits returns how many times name has been evaluated since it was last
// cleared.
func (i *Injector) Hits(name string) int {
	if i == nil {
		return 0
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if p, ok := i.points[name]; ok {
		return p.hits
	}
	return 0
}

// Eval reports the fault for this evaluation of name, if any. The hook runs
// first, then queued one-shot errors, then the persistent error.
func (i *Injector) Eval(name string, args ...any) error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	p := i.point(name)
	p.hits++
	hook := p.hook
	var once error
	if len(p.once) > 0 {
		once, p.once = p.once[0], p.once[1:]
	}
	always := p.always
	i.mu.Unlock()

	if hook != nil {
		if err := hook(args...); err != nil {
			return fmt.Errorf("fault %s (hook): %w", name, err)
		}
	}
	if once != nil {
		return fmt.Errorf("fault %s (once): %w", name, once)
	}
	if always != nil {
		return fmt.Errorf("fault %s (always): %w", name, always)
	}
	return nil
}

func (i *Injector) point(name string) *point {
	p, ok := i.points[name]
	if !ok {
		p = &point{}
		i.points[name] = p
	}
	return p
}
