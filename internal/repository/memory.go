package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type memoryRepo struct {
	mut     sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns a process-local Cache. now may be nil, in which case
// time.Now is used; tests pass a fake clock to drive expiry.
func NewMemory(now func() time.Time) Cache {
	if now == nil {
		now = time.Now
	}

	return &memoryRepo{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (m *memoryRepo) Get(_ context.Context, key string) (string, bool, error) {
	m.mut.RLock()
	entry, ok := m.entries[key]
	m.mut.RUnlock()

	if !ok || m.expired(entry) {
		return "", false, nil
	}

	return entry.value, true, nil
}

func (m *memoryRepo) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mut.Lock()
	m.entries[key] = entry
	m.mut.Unlock()

	return nil
}

func (m *memoryRepo) Delete(_ context.Context, keys ...string) (int64, error) {
	m.mut.Lock()
	defer m.mut.Unlock()

	var n int64
	for _, k := range keys {
		if entry, ok := m.entries[k]; ok {
			delete(m.entries, k)
			if !m.expired(entry) {
				n++
			}
		}
	}

	return n, nil
}

func (m *memoryRepo) Clear(context.Context) error {
	m.mut.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mut.Unlock()

	return nil
}

func (m *memoryRepo) Ping(context.Context) error {
	return nil
}

func (m *memoryRepo) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt)
}
