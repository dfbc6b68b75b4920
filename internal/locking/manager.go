// Package locking provides named mutual exclusion for operations that must
// not run concurrently against the same resource.
package locking

import (
	"fmt"
	"sync"
)

// Manager hands out per-key locks. A key is typically an order id or a job
// name; two holders of different keys never block each other.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a new lock manager
func NewManager() *Manager {
	return &Manager{locks: make(map[string]*entry)}
}

// Acquire blocks until the lock for key is held.
func (m *Manager) Acquire(key string) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
}

// TryAcquire attempts to take the lock for key without blocking.
// Returns an error when the lock is already held.
func (m *Manager) TryAcquire(key string) error {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	if !e.mu.TryLock() {
		m.mu.Unlock()
		return fmt.Errorf("lock %q already held", key)
	}
	e.refs++
	m.mu.Unlock()
	return nil
}

// Release drops the lock for key. Panics if the lock is not held, which
// always indicates an Acquire/Release pairing bug.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		m.mu.Unlock()
		panic(fmt.Sprintf("release of unheld lock %q", key))
	}
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()

	e.mu.Unlock()
}
