// Package modelmanager tracks which models are currently loaded and
// enforces the load/unload policy described in spec §4.3: at most one
// exclusive lock per model name during load/unload, optional auto-unload
// of other models, and idle-timeout cleanup.
package modelmanager

import (
	"context"
	"sync"
	"time"

	"vantage/internal/logging"
)

// Policy controls auto-unload behavior.
type Policy struct {
	// AutoUnload unloads every other model when a new one is requested.
	AutoUnload bool
	// KeepBothLoaded overrides AutoUnload when both a text and vision
	// model are in use simultaneously (the common two-model case).
	KeepBothLoaded bool
	// UnloadAfter is the idle duration after which CleanupInactive unloads
	// an entry.
	UnloadAfter time.Duration
}

// entry tracks one model's load state.
type entry struct {
	kind     string
	loadedAt time.Time
	lastUsed time.Time
}

// Warmup performs a single warmup call for a newly-loaded model. Callers
// supply their own implementation (e.g. a trivial LLM ping); Manager does
// not know how to talk to a model runtime directly.
type Warmup func(ctx context.Context, name, kind string) error

// Manager maintains model_name -> last_used_time under per-name locking.
type Manager struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	loaded  map[string]*entry
	policy  Policy
	warmup  Warmup
}

// New constructs a Manager. warmup may be nil, in which case
// EnsureLoaded only tracks bookkeeping without performing I/O.
func New(policy Policy, warmup Warmup) *Manager {
	return &Manager{
		locks:  make(map[string]*sync.Mutex),
		loaded: make(map[string]*entry),
		policy: policy,
		warmup: warmup,
	}
}

func (m *Manager) lockFor(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	return l
}

// EnsureLoaded guarantees that name is marked loaded, performing the
// warmup call and, per policy, unloading other models first. It is safe
// to call before every model invocation; repeat calls for an
// already-loaded model are cheap (they just refresh last-used time).
func (m *Manager) EnsureLoaded(ctx context.Context, name, kind string) error {
	lock := m.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	_, alreadyLoaded := m.loaded[name]
	m.mu.Unlock()

	if alreadyLoaded {
		m.touch(name)
		return nil
	}

	if m.policy.AutoUnload {
		m.unloadAllExcept(name, kind)
	}

	if m.warmup != nil {
		if err := m.warmup(ctx, name, kind); err != nil {
			logging.Log.WithError(err).WithField("model", name).Warn("modelmanager: warmup failed")
			return err
		}
	}

	now := time.Now()
	m.mu.Lock()
	m.loaded[name] = &entry{kind: kind, loadedAt: now, lastUsed: now}
	m.mu.Unlock()
	return nil
}

func (m *Manager) touch(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.loaded[name]; ok {
		e.lastUsed = time.Now()
	}
}

func (m *Manager) unloadAllExcept(keep, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, e := range m.loaded {
		if name == keep {
			continue
		}
		// KeepBothLoaded spares a loaded model of the other kind.
		if m.policy.KeepBothLoaded && e.kind != kind {
			continue
		}
		delete(m.loaded, name)
	}
}

// CleanupInactive unloads every model idle longer than policy.UnloadAfter.
// Returns the names unloaded.
func (m *Manager) CleanupInactive() []string {
	if m.policy.UnloadAfter <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-m.policy.UnloadAfter)
	m.mu.Lock()
	defer m.mu.Unlock()
	var unloaded []string
	for name, e := range m.loaded {
		if e.lastUsed.Before(cutoff) {
			delete(m.loaded, name)
			unloaded = append(unloaded, name)
		}
	}
	return unloaded
}

// IsLoaded reports whether name is currently tracked as loaded.
func (m *Manager) IsLoaded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loaded[name]
	return ok
}
