package cache

import (
	"context"
	"time"
)

// MemoryStore is a process-local Store. Invalidation is only visible inside
// this process, so it suits single-instance deployments and tests.
type MemoryStore struct {
	items *SimpleCache[string, []byte]
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: NewSimpleCache[string, []byte]()}
}

// Get implements Store.Get. The returned slice is a copy.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements Store.Set.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// InvalidatePrefix implements Store.InvalidatePrefix under a single write lock.
func (m *MemoryStore) InvalidatePrefix(_ context.Context, prefix string) (int, error) {
	n := m.items.DeleteFunc(func(key string) bool { return matchesPrefix(key, prefix) })
	invalidations.WithLabelValues(namespaceOf(Root + ":" + prefix)).Inc()
	return n, nil
}

// Len reports the number of live entries.
func (m *MemoryStore) Len() int { return m.items.Len() }

// RunJanitor purges expired entries every interval until ctx is done.
func (m *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.items.PurgeExpired()
		}
	}
}

var _ Store = (*MemoryStore)(nil)
