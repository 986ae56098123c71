package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is a process-local Store used when Redis is not configured and in tests
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return e, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return e, false
	}
	return e, true
}

// Get implements Store
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return "", ErrMiss
	}
	return e.value, nil
}

// SetEx implements Store; a zero ttl never expires
func (m *Memory) SetEx(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Del implements Store
func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Incr implements Store. The expiry of an existing counter is kept.
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		e = memoryEntry{}
	}
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	m.entries[key] = e
	return n, nil
}

// Expire implements Store
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.live(key); ok {
		e.expiresAt = m.now().Add(ttl)
		m.entries[key] = e
	}
	return nil
}

// Len reports how many live keys are stored
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entries {
		if _, ok := m.live(k); ok {
			n++
		}
	}
	return n
}
