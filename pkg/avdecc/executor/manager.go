package executor

import "sync"

// Manager is the process-wide named Executor registry (spec §9 "shared
// executor"): multiple Protocol Interfaces may name the same executor so
// their callbacks interleave on a single goroutine instead of each owning
// an independent one. Concurrency model mirrors a stream registry: an
// RWMutex guards the name→Executor map; executors themselves serialize
// their own task queue.
type Manager struct {
	mu        sync.RWMutex
	executors map[string]*Executor
}

// defaultManager is the process-wide instance most callers use through the
// package-level GetOrCreate/Release functions.
var defaultManager = NewManager()

// NewManager creates an empty Manager. Most callers should use the
// package-level functions instead, which operate on a shared instance; a
// fresh Manager is useful mainly in tests that want isolation.
func NewManager() *Manager {
	return &Manager{executors: make(map[string]*Executor)}
}

// GetOrCreate returns the named executor, creating and starting it if this
// is the first reference.
func (m *Manager) GetOrCreate(name string) *Executor {
	m.mu.RLock()
	if e, ok := m.executors[name]; ok {
		m.mu.RUnlock()
		return e
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.executors[name]; ok { // double-check after upgrading the lock
		return e
	}
	e := New(name)
	m.executors[name] = e
	return e
}

// Release shuts down and forgets the named executor if present. Safe to
// call even if other Protocol Interfaces still hold a reference to the
// returned *Executor pointer — those holders simply keep using an executor
// that is no longer reachable by name.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	e, ok := m.executors[name]
	if ok {
		delete(m.executors, name)
	}
	m.mu.Unlock()
	if ok {
		e.Shutdown()
	}
}

// Names returns a snapshot of every currently registered executor name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.executors))
	for name := range m.executors {
		names = append(names, name)
	}
	return names
}

// GetOrCreate returns (creating if needed) the named executor from the
// process-wide default Manager.
func GetOrCreate(name string) *Executor { return defaultManager.GetOrCreate(name) }

// Release shuts down and forgets name on the process-wide default Manager.
func Release(name string) { defaultManager.Release(name) }
