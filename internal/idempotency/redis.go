// Package idempotency stores PlaceOrder idempotency keys in Redis.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	keyFormat = "idem:order:place:%s"

	// DefaultTTL bounds how long a completed key replays its order.
	DefaultTTL = 24 * time.Hour
	// DefaultPendingTTL bounds how long a claim without an order blocks
	// retries.
	DefaultPendingTTL = time.Minute
)

var _ order.ReplayStore = (*Store)(nil)

// Store implements order.ReplayStore. A claimed key holds the empty string
// for at most the pending TTL, then the order ID for the full TTL.
type Store struct {
	rdb     redis.UniversalClient
	ttl     time.Duration
	pending time.Duration
}

// New returns a Store. Zero durations select DefaultTTL and
// DefaultPendingTTL. pending must outlast a single placement or a slow call
// can be replayed while it is still running.
func New(rdb redis.UniversalClient, ttl, pending time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if pending <= 0 {
		pending = DefaultPendingTTL
	}
	if pending > ttl {
		pending = ttl
	}
	return &Store{rdb: rdb, ttl: ttl, pending: pending}
}

func redisKey(key string) string {
	return fmt.Sprintf(keyFormat, key)
}

// Claim implements order.ReplayStore.
func (s *Store) Claim(ctx context.Context, key string) (string, bool, error) {
	k := redisKey(key)
	ok, err := s.rdb.SetNX(ctx, k, "", s.pending).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "setnx")
	}
	if ok {
		return "", true, nil
	}

	id, err := s.rdb.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired or released between SETNX and GET.
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "get")
	}
	return id, false, nil
}

// Complete implements order.ReplayStore.
func (s *Store) Complete(ctx context.Context, key, orderID string) error {
	if err := s.rdb.Set(ctx, redisKey(key), orderID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

// Release implements order.ReplayStore.
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, redisKey(key)).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
