//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	endpoint, err := c.Endpoint(ctx, "")
	require.NoError(t, err)

	pool, err := NewPool(ctx, fmt.Sprintf("postgres://shop:shop@%s/shop?sslmode=disable", endpoint))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestPostgres(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	products := NewProductRepository(pool)
	orders := NewOrderRepository(pool)
	customers := NewCustomerRepository(pool)
	keys := NewAPIKeyRepository(pool)
	categories := NewCategoryRepository(pool)

	t.Run("Products", func(t *testing.T) {
		p := &product.Product{ID: "p-crud", Name: "100% Cotton_Shirt", Price: decimal.RequireFromString("19.99"), Stock: 4}
		require.NoError(t, products.Create(ctx, p))
		assert.False(t, p.CreatedAt.IsZero())
		require.ErrorIs(t, products.Create(ctx, p), product.ErrAlreadyExists)

		got, total, err := products.List(ctx, product.Page{Limit: 10, Search: "100%"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, got, 1)
		assert.True(t, got[0].Price.Equal(p.Price))

		updated, err := products.UpdatePrice(ctx, p.ID, decimal.RequireFromString("24.50"))
		require.NoError(t, err)
		assert.Equal(t, "24.5", updated.Price.String())

		stock, err := products.Restock(ctx, p.ID, 6)
		require.NoError(t, err)
		assert.Equal(t, 10, stock)

		require.NoError(t, products.Delete(ctx, p.ID))
		_, err = products.GetByID(ctx, p.ID)
		require.ErrorIs(t, err, product.ErrNotFound)
		require.ErrorIs(t, products.Delete(ctx, p.ID), product.ErrNotFound)
	})

	t.Run("RestockLimit", func(t *testing.T) {
		require.NoError(t, products.Create(ctx, &product.Product{ID: "p-limit", Name: "Limit", Price: decimal.NewFromInt(1), Stock: 10}))

		_, err := products.Restock(ctx, "p-limit", product.MaxQuantity)
		require.ErrorIs(t, err, product.ErrInvalid)
		p, err := products.GetByID(ctx, "p-limit")
		require.NoError(t, err)
		assert.Equal(t, 10, p.Stock)
	})

	t.Run("Update", func(t *testing.T) {
		require.NoError(t, products.Create(ctx, &product.Product{ID: "p-upd", Name: "Old", Description: "Keep", Price: decimal.NewFromInt(1), Stock: 2}))

		name := "New"
		p, err := products.Update(ctx, "p-upd", product.Fields{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "New", p.Name)
		assert.Equal(t, "Keep", p.Description)
		assert.Equal(t, 2, p.Stock)

		_, err = products.Update(ctx, "p-missing", product.Fields{Name: &name})
		require.ErrorIs(t, err, product.ErrNotFound)
	})

	t.Run("UpsertAddsStock", func(t *testing.T) {
		p := &product.Product{ID: "p-ups", Name: "Feed", Price: decimal.NewFromInt(4), Stock: 10}
		require.NoError(t, products.Upsert(ctx, p))

		_, err := products.TryReserveStock(ctx, "p-ups", 3)
		require.NoError(t, err)

		// A second import delivers 5 more units at a new price.
		require.NoError(t, products.Upsert(ctx, &product.Product{ID: "p-ups", Name: "Feed v2", Price: decimal.NewFromInt(3), Stock: 5}))
		got, err := products.GetByID(ctx, "p-ups")
		require.NoError(t, err)
		assert.Equal(t, 12, got.Stock, "reserved units stay reserved")
		assert.Equal(t, "Feed v2", got.Name)
		assert.Equal(t, "3", got.Price.String())

		err = products.Upsert(ctx, &product.Product{ID: "p-ups", Name: "Feed v2", Price: decimal.NewFromInt(3), Stock: product.MaxQuantity})
		require.ErrorIs(t, err, product.ErrInvalid)
	})

	t.Run("FilteredList", func(t *testing.T) {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, cat := range []string{"f-cake", "f-cake", "f-pie"} {
			_, err := pool.Exec(ctx, `INSERT INTO products (id, name, price, stock, category_id, created_at)
				VALUES ($1, 'Filtered', $2, 1, $3, $4)`,
				fmt.Sprintf("f-%d", i), decimal.NewFromInt(int64(10*(i+1))), cat, base.Add(time.Duration(i)*time.Hour))
			require.NoError(t, err)
		}
		ids := func(page product.Page) ([]string, int) {
			t.Helper()
			page.Search = "Filtered"
			got, total, err := products.List(ctx, page.Normalize())
			require.NoError(t, err)
			out := make([]string, len(got))
			for i, p := range got {
				out[i] = p.ID
			}
			return out, total
		}
		dec := func(n int64) *decimal.Decimal {
			d := decimal.NewFromInt(n)
			return &d
		}

		got, total := ids(product.Page{})
		assert.Equal(t, []string{"f-2", "f-1", "f-0"}, got)
		assert.Equal(t, 3, total)

		got, _ = ids(product.Page{Sort: product.SortOldest})
		assert.Equal(t, []string{"f-0", "f-1", "f-2"}, got)

		got, total = ids(product.Page{CategoryID: "f-cake", Limit: 1})
		assert.Equal(t, []string{"f-1"}, got)
		assert.Equal(t, 2, total)

		got, _ = ids(product.Page{MinPrice: dec(15), MaxPrice: dec(30)})
		assert.Equal(t, []string{"f-2", "f-1"}, got)

		n, err := products.CountInCategory(ctx, "f-cake")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Categories", func(t *testing.T) {
		c := &category.Category{ID: "cat-1", Name: "Pies", Description: "Fruit pies"}
		require.NoError(t, categories.Create(ctx, c))
		assert.False(t, c.CreatedAt.IsZero())
		require.ErrorIs(t, categories.Create(ctx, c), category.ErrAlreadyExists)
		require.NoError(t, categories.Create(ctx, &category.Category{ID: "cat-2", Name: "Cakes", Description: "Layer cakes"}))

		all, err := categories.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Cakes", all[0].Name)

		desc := "Sweet"
		updated, err := categories.Update(ctx, "cat-1", category.Fields{Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, "Pies", updated.Name)
		assert.Equal(t, "Sweet", updated.Description)

		require.NoError(t, categories.Upsert(ctx, &category.Category{ID: "cat-1", Name: "Tarts", Description: "Open pies"}))
		got, err := categories.Get(ctx, "cat-1")
		require.NoError(t, err)
		assert.Equal(t, "Tarts", got.Name)

		require.NoError(t, categories.Delete(ctx, "cat-1"))
		_, err = categories.Get(ctx, "cat-1")
		require.ErrorIs(t, err, category.ErrNotFound)
		require.ErrorIs(t, categories.Delete(ctx, "cat-1"), category.ErrNotFound)
		_, err = categories.Update(ctx, "cat-1", category.Fields{Description: &desc})
		require.ErrorIs(t, err, category.ErrNotFound)
	})

	t.Run("Reserve", func(t *testing.T) {
		require.NoError(t, products.Create(ctx, &product.Product{ID: "p-res", Name: "Lamp", Price: decimal.NewFromInt(5), Stock: 3}))

		r, err := products.TryReserveStock(ctx, "p-res", 2)
		require.NoError(t, err)
		assert.Equal(t, 1, r.Remaining)

		r, err = products.TryReserveStock(ctx, "p-res", 2)
		require.ErrorIs(t, err, product.ErrInsufficientStock)
		assert.Equal(t, 1, r.Remaining)

		_, err = products.TryReserveStock(ctx, "p-missing", 1)
		require.ErrorIs(t, err, product.ErrNotFound)

		require.NoError(t, products.ReleaseStock(ctx, "p-res", 2))
		p, err := products.GetByID(ctx, "p-res")
		require.NoError(t, err)
		assert.Equal(t, 3, p.Stock)
	})

	t.Run("ConcurrentReserve", func(t *testing.T) {
		const (
			stock   = 20
			workers = 60
		)
		require.NoError(t, products.Create(ctx, &product.Product{ID: "p-hot", Name: "Hot", Price: decimal.NewFromInt(1), Stock: stock}))

		var (
			wg       sync.WaitGroup
			reserved atomic.Int64
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := products.TryReserveStock(ctx, "p-hot", 1)
				switch {
				case err == nil:
					reserved.Add(1)
				case errors.Is(err, product.ErrInsufficientStock):
				default:
					t.Errorf("reserve: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(stock), reserved.Load())
		p, err := products.GetByID(ctx, "p-hot")
		require.NoError(t, err)
		assert.Zero(t, p.Stock)
	})

	t.Run("Customers", func(t *testing.T) {
		c := &customer.Customer{ID: "c-1", Name: "Ann", Email: "ann@example.com", PasswordHash: "x", Role: customer.RoleCustomer}
		require.NoError(t, customers.Insert(ctx, c))
		assert.False(t, c.CreatedAt.IsZero())
		require.ErrorIs(t, customers.Insert(ctx, &customer.Customer{ID: "c-2", Email: "ann@example.com", PasswordHash: "x"}), customer.ErrEmailTaken)

		phone := "5551234567"
		got, err := customers.UpdateFields(ctx, c.ID, customer.Fields{Phone: &phone})
		require.NoError(t, err)
		assert.Equal(t, phone, got.Phone)
		assert.Equal(t, "Ann", got.Name)

		byEmail, err := customers.GetByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.Equal(t, c.ID, byEmail.ID)

		require.NoError(t, customers.Delete(ctx, c.ID))
		_, err = customers.Get(ctx, c.ID)
		require.ErrorIs(t, err, customer.ErrNotFound)
	})

	t.Run("Orders", func(t *testing.T) {
		o := &order.Order{
			ID:         "o-1",
			CustomerID: "c-1",
			Lines: []order.Line{
				{ProductID: "p-res", Quantity: 2, UnitPrice: decimal.RequireFromString("5.25"), ProductName: "Lamp"},
			},
			Total:     decimal.RequireFromString("10.50"),
			Status:    order.StatusPending,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, orders.Create(ctx, o))

		got, err := orders.Get(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, got.Lines, 1)
		assert.True(t, got.Lines[0].UnitPrice.Equal(decimal.RequireFromString("5.25")))
		assert.Empty(t, got.Lines[0].ProductName)
		assert.True(t, got.Total.Equal(o.Total))

		updated, err := orders.UpdateStatus(ctx, o.ID, order.StatusShipped)
		require.NoError(t, err)
		assert.Equal(t, order.StatusShipped, updated.Status)

		list, err := orders.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, orders.Delete(ctx, o.ID))
		_, err = orders.Get(ctx, o.ID)
		require.ErrorIs(t, err, order.ErrOrderNotFound)
		require.ErrorIs(t, orders.Delete(ctx, o.ID), order.ErrOrderNotFound)
	})

	t.Run("APIKeys", func(t *testing.T) {
		pepper := []byte("pepper")
		info := &auth.APIKeyInfo{ID: "k-1", KeyHash: auth.HashAPIKey(pepper, "secret"), Name: "ops", Scopes: []string{auth.ScopeAdmin}}
		require.NoError(t, keys.Upsert(ctx, info))

		got, err := keys.FindByHash(ctx, info.KeyHash)
		require.NoError(t, err)
		assert.Equal(t, "ops", got.Name)
		assert.True(t, got.HasScope(auth.ScopeAdmin))

		_, err = keys.FindByHash(ctx, auth.HashAPIKey(pepper, "other"))
		require.Error(t, err)
	})
}
