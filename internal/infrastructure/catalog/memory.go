package catalog

import (
	"context"
	"sync"

	"storefront-backend/internal/domain"
)

type Memory struct {
	mu       sync.RWMutex
	stores   map[string]StoreRow
	products map[string]ProductRow
	variants map[string]VariantRow
}

func NewMemory() *Memory {
	return &Memory{
		stores:   map[string]StoreRow{},
		products: map[string]ProductRow{},
		variants: map[string]VariantRow{},
	}
}

func (m *Memory) Seed(_ context.Context, s Seed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range s.Stores {
		m.stores[r.ID] = r
	}
	for _, r := range s.Products {
		m.products[r.ID] = r
	}
	for _, r := range s.Variants {
		m.variants[r.ID] = r
	}
	return nil
}

func (m *Memory) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.products[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return r.toDomain(), nil
}

func (m *Memory) GetVariant(_ context.Context, id string) (*domain.ProductVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.variants[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return r.toDomain(), nil
}

func (m *Memory) GetStore(_ context.Context, id string) (*domain.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.stores[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return r.toDomain(), nil
}
