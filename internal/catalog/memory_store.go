// internal/catalog/memory_store.go
package catalog

import (
	"context"
	"sync"

	"lender-match-workers/internal/models"
)

// MemoryStore is a process-local Store, used when Redis is not configured
// and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	snap *models.CatalogSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*models.CatalogSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, ErrCacheMiss
	}
	return copySnapshot(s.snap), nil
}

func (s *MemoryStore) Save(ctx context.Context, snap *models.CatalogSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = copySnapshot(snap)
	return nil
}

func copySnapshot(snap *models.CatalogSnapshot) *models.CatalogSnapshot {
	if snap == nil {
		return nil
	}
	out := *snap
	out.Products = append([]models.LenderProduct(nil), snap.Products...)
	return &out
}
