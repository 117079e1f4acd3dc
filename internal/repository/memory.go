package repository

import (
	"context"
	"strings"
	"sync"

	"bookingsync/internal/domain"
)

var _ domain.OfflineCache = (*MemoryCacheRepository)(nil)

// MemoryCacheRepository is a process-local cache used in tests and as the
// last-resort fallback. Entries do not survive a restart.
type MemoryCacheRepository struct {
	mu     sync.RWMutex
	values map[string][]byte
	order  []string
}

func NewMemoryCacheRepository() *MemoryCacheRepository {
	return &MemoryCacheRepository{values: make(map[string][]byte)}
}

func (r *MemoryCacheRepository) Get(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (r *MemoryCacheRepository) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[key]; !ok {
		r.order = append(r.order, key)
	}
	r.values[key] = append([]byte(nil), value...)
	return nil
}

func (r *MemoryCacheRepository) Remove(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[key]; !ok {
		return nil
	}
	delete(r.values, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryCacheRepository) List(_ context.Context, prefix string) ([]domain.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var entries []domain.CacheEntry
	for _, k := range r.order {
		if strings.HasPrefix(k, prefix) {
			entries = append(entries, domain.CacheEntry{Key: k, Value: append([]byte(nil), r.values[k]...)})
		}
	}
	return entries, nil
}

// Len returns the number of stored entries.
func (r *MemoryCacheRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}
