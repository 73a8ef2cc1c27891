package memory

import (
	"context"
	"sync"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.ReplayStore = (*ReplayStore)(nil)

// ReplayStore keeps idempotency keys in process memory. Keys never expire.
type ReplayStore struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewReplayStore returns an empty ReplayStore.
func NewReplayStore() *ReplayStore {
	return &ReplayStore{keys: make(map[string]string)}
}

// Claim takes ownership of key unless it is already known.
func (s *ReplayStore) Claim(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.keys[key]; ok {
		return id, false, nil
	}
	s.keys[key] = ""
	return "", true, nil
}

// Complete records the order created under key.
func (s *ReplayStore) Complete(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = orderID
	return nil
}

// Release forgets key.
func (s *ReplayStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
