package views

import (
	"context"
	"sync"
	"time"
)

// Backend stores serialised views under a key with a set of tags.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	// Drop removes every entry carrying any of tags.
	Drop(ctx context.Context, tags ...string) error
	Close() error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
	tags    []string
}

// MemoryBackend is a process-local TTL map.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	tagged  map[string]map[string]struct{}
	now     func() time.Time
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		tagged:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		m.removeLocked(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
	entry := memoryEntry{value: append([]byte(nil), value...), tags: append([]string(nil), tags...)}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}
	m.entries[key] = entry
	for _, tag := range tags {
		keys := m.tagged[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			m.tagged[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

func (m *MemoryBackend) Drop(_ context.Context, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range tags {
		for key := range m.tagged[tag] {
			m.removeLocked(key)
		}
		delete(m.tagged, tag)
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// Len returns the number of live and expired-but-unswept entries.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryBackend) removeLocked(key string) {
	entry, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	for _, tag := range entry.tags {
		if keys := m.tagged[tag]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.tagged, tag)
			}
		}
	}
}
