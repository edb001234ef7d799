package store

import (
	"encoding/json"
	"sync"
	"time"
)

type entry struct {
	data      []byte // JSON-encoded value; decoding on read gives callers a copy
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is the in-process Store backend. TTLs are wall-clock and enforced
// lazily on read; no background sweeper runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string]entry

	// now is swappable in tests.
	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// Set stores value under key with an optional TTL.
func (m *Memory) Set(key string, value map[string]interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	e := entry{data: raw}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.data[key] = e
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the stored value, or ok=false when absent/expired.
func (m *Memory) Get(key string) (map[string]interface{}, bool) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		// Recheck under write lock; another writer may have refreshed the key.
		if cur, ok := m.data[key]; ok && cur.expired(m.now()) {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return nil, false
	}

	var out map[string]interface{}
	if err := json.Unmarshal(e.data, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Delete removes key.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// SetIfAbsent arms key for ttl iff absent or expired. Returns true at most
// once per TTL window.
func (m *Memory) SetIfAbsent(key string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.data[key]; ok && !e.expired(m.now()) {
		return false
	}

	e := entry{data: []byte(`{}`)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = e
	return true
}

// CheckThrottle returns true and arms the cooldown iff no alert of this name
// fired within the window.
func (m *Memory) CheckThrottle(name string, cooldown time.Duration) bool {
	return m.SetIfAbsent(throttlePrefix+name, cooldown)
}

var _ Store = (*Memory)(nil)
