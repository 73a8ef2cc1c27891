package memory

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository is an in-memory API key store keyed by hash.
type APIKeyRepository struct {
	mu     sync.RWMutex
	byHash map[string]auth.APIKeyInfo
}

// NewAPIKeyRepository returns an empty API key store.
func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{byHash: make(map[string]auth.APIKeyInfo)}
}

// FindByHash looks up an API key by its HMAC hash.
func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byHash[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return &info, nil
}

// Upsert stores info under its hash, replacing any key with the same ID.
func (r *APIKeyRepository) Upsert(_ context.Context, info *auth.APIKeyInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, existing := range r.byHash {
		if existing.ID == info.ID {
			delete(r.byHash, hash)
		}
	}
	r.byHash[info.KeyHash] = *info
	return nil
}
