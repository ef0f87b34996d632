package stock

import (
	"context"
	"sync"
)

// MemoryStore implements Source with in-memory storage
type MemoryStore struct {
	mu     sync.RWMutex
	stocks map[string]int // productID -> units available
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stocks: make(map[string]int)}
}

// NewMemoryStoreFrom seeds a store, typically from the `stock` section of the config file.
func NewMemoryStoreFrom(levels map[string]int) (*MemoryStore, error) {
	s := NewMemoryStore()
	for id, qty := range levels {
		if err := s.SetStock(id, qty); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) Available(ctx context.Context, productID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	qty, exists := s.stocks[productID]
	if !exists {
		return 0, ErrProductNotFound
	}
	return qty, nil
}

// SetStock sets the stock level for a product
func (s *MemoryStore) SetStock(productID string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stocks[productID] = quantity
	return nil
}

// Forget stops tracking a product, making its stock unknown again.
func (s *MemoryStore) Forget(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stocks, productID)
}
