package state

import (
	"sync"

	"github.com/m3rciful/orderbot/core/order"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[order.Key]order.Session
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[order.Key]order.Session),
	}
}

// Get returns the session for key if one exists.
func (m *memoryStore) Get(key order.Key) (order.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Put stores s for key. Terminal or nil sessions are never kept.
func (m *memoryStore) Put(key order.Key, s order.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil || s.Stage().Terminal() {
		delete(m.sessions, key)
		return
	}
	m.sessions[key] = s
}

// Remove drops the session for key.
func (m *memoryStore) Remove(key order.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// Len reports the number of active sessions.
func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
