package session

import (
	"sync"
	"time"
)

const janitorInterval = time.Minute

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// memoryStore is the in-process fallback: a concurrent map with per-entry
// expiry and a background janitor. It mirrors the primary's TTL semantics so
// a session read from here behaves like one read from the network.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	stop chan struct{}
	done chan struct{}
}

func newMemoryStore() *memoryStore {
	m := &memoryStore{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *memoryStore) get(id string, now time.Time) ([]byte, bool) {
	m.mu.RLock()
	ent, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !now.Before(ent.expiresAt) {
		m.delete(id)
		return nil, false
	}
	return ent.data, true
}

func (m *memoryStore) set(id string, data []byte, expiresAt time.Time) {
	m.mu.Lock()
	m.entries[id] = memoryEntry{data: data, expiresAt: expiresAt}
	m.mu.Unlock()
}

func (m *memoryStore) delete(id string) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}

func (m *memoryStore) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *memoryStore) janitor() {
	defer close(m.done)
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *memoryStore) sweep(now time.Time) {
	m.mu.Lock()
	for id, ent := range m.entries {
		if !now.Before(ent.expiresAt) {
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()
}

func (m *memoryStore) close() {
	close(m.stop)
	<-m.done
}
