package store

import (
	"context"
	"sync"

	"pagehound/internal/models"
)

// MemoryCacheStore is a mutex-guarded in-process CacheStore, used by
// tests and single-node runs.
type MemoryCacheStore struct {
	mu      sync.Mutex
	records map[string]models.CacheRecord
}

func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{records: make(map[string]models.CacheRecord)}
}

func (s *MemoryCacheStore) Get(ctx context.Context, identifier string) (models.CacheRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identifier]
	return rec, ok, nil
}

func (s *MemoryCacheStore) Update(ctx context.Context, identifier string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current *models.CacheRecord
	if rec, ok := s.records[identifier]; ok {
		copied := rec
		current = &copied
	}
	next, write := fn(current)
	if write {
		s.records[identifier] = next
	}
	return nil
}

func (s *MemoryCacheStore) Close() error {
	return nil
}
