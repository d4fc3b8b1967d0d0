package idempotency

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	OrderID   string
	ExpiresAt time.Time
}

// Store is the in-process key table. Entries expire after TTL so an
// abandoned reservation does not block the key forever.
type Store struct {
	mu   sync.RWMutex
	keys map[string]*entry
	ttl  time.Duration
	now  func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{keys: make(map[string]*entry), ttl: ttl, now: time.Now}
}

func (s *Store) Reserve(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.keys[key]; ok && now.Before(e.ExpiresAt) {
		return e.OrderID, false, nil
	}
	s.keys[key] = &entry{ExpiresAt: now.Add(s.ttl)}
	return "", true, nil
}

func (s *Store) Bind(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = &entry{OrderID: orderID, ExpiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
