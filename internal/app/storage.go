package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/internal/repository/memory"
	"github.com/xenking/storefront/pkg/health"
)

// stores groups the repositories of one storage backend.
type stores struct {
	products   product.Repository
	categories category.Repository
	customers  customer.Repository
	orders     order.Repository
	apikeys    auth.Repository

	// ping is nil for in-process storage.
	ping  health.Pinger
	close func()
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config) (*stores, error) {
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, data is lost on exit")
		return &stores{
			products:   memory.NewProductRepository(),
			categories: memory.NewCategoryRepository(),
			customers:  memory.NewCustomerRepository(),
			orders:     memory.NewOrderRepository(),
			apikeys:    memory.NewAPIKeyRepository(),
			close:      func() {},
		}, nil
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &stores{
		products:   repository.NewProductRepository(pool),
		categories: repository.NewCategoryRepository(pool),
		customers:  repository.NewCustomerRepository(pool),
		orders:     repository.NewOrderRepository(pool),
		apikeys:    repository.NewAPIKeyRepository(pool),
		ping:       pool,
		close:      pool.Close,
	}, nil
}

// registerAdminKey stores the configured admin API key, replacing an earlier
// one.
func registerAdminKey(ctx context.Context, repo auth.Repository, pepper []byte, key string) error {
	if key == "" {
		return nil
	}
	return repo.Upsert(ctx, &auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.HashAPIKey(pepper, key),
		Name:    "configured admin key",
		Scopes:  []string{auth.ScopeAdmin},
	})
}
