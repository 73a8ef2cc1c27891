package memory

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

func TestProductRepository_Reserve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewProductRepository(product.Product{ID: "p1", Name: "Widget", Stock: 3})

	r, err := repo.TryReserveStock(ctx, "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Remaining)

	r, err = repo.TryReserveStock(ctx, "p1", 2)
	require.ErrorIs(t, err, product.ErrInsufficientStock)
	assert.Equal(t, 1, r.Remaining, "reports the stock it saw")

	require.NoError(t, repo.ReleaseStock(ctx, "p1", 2))
	p, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	_, err = repo.TryReserveStock(ctx, "nope", 1)
	require.ErrorIs(t, err, product.ErrNotFound)
	require.ErrorIs(t, repo.ReleaseStock(ctx, "nope", 1), product.ErrNotFound)
}

func TestProductRepository_ConcurrentReserve(t *testing.T) {
	t.Parallel()
	const (
		stock   = 25
		workers = 100
	)
	ctx := context.Background()
	repo := NewProductRepository(
		product.Product{ID: "hot", Stock: stock},
		product.Product{ID: "cold", Stock: workers},
	)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range workers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := repo.TryReserveStock(ctx, "hot", 1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			_, err := repo.TryReserveStock(ctx, "cold", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, ok)
	hot, err := repo.GetByID(ctx, "hot")
	require.NoError(t, err)
	assert.Zero(t, hot.Stock)
	cold, err := repo.GetByID(ctx, "cold")
	require.NoError(t, err)
	assert.Zero(t, cold.Stock)
}

func TestProductRepository_Catalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewProductRepository()

	for i, name := range []string{"Red Widget", "Blue Widget", "Gadget"} {
		p := &product.Product{
			ID:        name,
			Name:      name,
			Price:     decimal.NewFromInt(int64(i + 1)),
			Stock:     1,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, repo.Create(ctx, p))
	}
	require.ErrorIs(t, repo.Create(ctx, &product.Product{ID: "Gadget"}), product.ErrAlreadyExists)

	got, total, err := repo.List(ctx, product.Page{Limit: 10, Search: "widget"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, "Blue Widget", got[0].Name, "newest first")

	got, total, err = repo.List(ctx, product.Page{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, got, 1)
	assert.Equal(t, "Red Widget", got[0].Name)

	updated, err := repo.UpdatePrice(ctx, "Gadget", decimal.RequireFromString("9.99"))
	require.NoError(t, err)
	assert.Equal(t, "9.99", updated.Price.String())

	byIDs, err := repo.GetByIDs(ctx, []string{"Gadget", "missing"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 1)

	n, err := repo.Restock(ctx, "Gadget", 4)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, repo.Delete(ctx, "Gadget"))
	require.ErrorIs(t, repo.Delete(ctx, "Gadget"), product.ErrNotFound)
	_, err = repo.UpdatePrice(ctx, "Gadget", decimal.Zero)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestProductRepository_Filters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewProductRepository()
	for i, cat := range []string{"cake", "cake", "pie", ""} {
		require.NoError(t, repo.Create(ctx, &product.Product{
			ID:         string(rune('a' + i)),
			Name:       "Item",
			Price:      decimal.NewFromInt(int64(10 * (i + 1))),
			Stock:      1,
			CategoryID: cat,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
	ids := func(page product.Page) []string {
		t.Helper()
		got, _, err := repo.List(ctx, page.Normalize())
		require.NoError(t, err)
		out := make([]string, len(got))
		for i, p := range got {
			out[i] = p.ID
		}
		return out
	}
	dec := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	assert.Equal(t, []string{"b", "a"}, ids(product.Page{CategoryID: "cake"}))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(product.Page{Sort: product.SortOldest}))
	assert.Equal(t, []string{"c", "b"}, ids(product.Page{MinPrice: dec("20"), MaxPrice: dec("30")}))
	assert.Equal(t, []string{"b"}, ids(product.Page{CategoryID: "cake", MinPrice: dec("15")}))

	_, total, err := repo.List(ctx, product.Page{CategoryID: "cake", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	n, err := repo.CountInCategory(ctx, "cake")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestProductRepository_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewProductRepository(product.Product{ID: "p1", Name: "Widget", Description: "Old", Stock: 3})

	name := "Gizmo"
	p, err := repo.Update(ctx, "p1", product.Fields{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Gizmo", p.Name)
	assert.Equal(t, "Old", p.Description)
	assert.Equal(t, 3, p.Stock)

	_, err = repo.Update(ctx, "missing", product.Fields{Name: &name})
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestProductRepository_RestockOverflow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewProductRepository(product.Product{ID: "p1", Stock: 5})

	_, err := repo.Restock(ctx, "p1", math.MaxInt)
	require.ErrorIs(t, err, product.ErrInvalid)
	_, err = repo.Restock(ctx, "p1", product.MaxQuantity-4)
	require.ErrorIs(t, err, product.ErrInvalid)

	p, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	n, err := repo.Restock(ctx, "p1", product.MaxQuantity-5)
	require.NoError(t, err)
	assert.Equal(t, product.MaxQuantity, n)
}

func TestCategoryRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewCategoryRepository(category.Category{ID: "pie", Name: "Pies", Description: "Fruit pies"})

	c := &category.Category{ID: "cake", Name: "Cakes", Description: "Layer cakes"}
	require.NoError(t, repo.Create(ctx, c))
	assert.False(t, c.CreatedAt.IsZero())
	require.ErrorIs(t, repo.Create(ctx, c), category.ErrAlreadyExists)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Cakes", all[0].Name, "ordered by name")

	desc := "Baked"
	updated, err := repo.Update(ctx, "cake", category.Fields{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Cakes", updated.Name)
	assert.Equal(t, "Baked", updated.Description)

	require.NoError(t, repo.Delete(ctx, "cake"))
	_, err = repo.Get(ctx, "cake")
	require.ErrorIs(t, err, category.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "cake"), category.ErrNotFound)
	_, err = repo.Update(ctx, "cake", category.Fields{})
	require.ErrorIs(t, err, category.ErrNotFound)
}

func TestOrderRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewOrderRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, repo.Create(ctx, &order.Order{
			ID:        id,
			Lines:     []order.Line{{ProductID: "p1", Quantity: 1, ProductName: "Widget"}},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	assert.Equal(t, 3, repo.Len())

	o, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, o.Lines[0].ProductName, "names are not stored")

	// Mutating a returned copy does not change the store.
	o.Lines[0].Quantity = 99
	again, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Lines[0].Quantity)

	list, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "o3", list[0].ID)

	updated, err := repo.UpdateStatus(ctx, "o2", order.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, updated.Status)

	require.NoError(t, repo.Delete(ctx, "o2"))
	_, err = repo.Get(ctx, "o2")
	require.ErrorIs(t, err, order.ErrOrderNotFound)
	_, err = repo.UpdateStatus(ctx, "o2", order.StatusShipped)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestCustomerRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewCustomerRepository()

	require.NoError(t, repo.Insert(ctx, &customer.Customer{ID: "c1", Email: "a@example.com", Name: "Ann"}))
	require.ErrorIs(t, repo.Insert(ctx, &customer.Customer{ID: "c2", Email: "a@example.com"}), customer.ErrEmailTaken)

	c, err := repo.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.False(t, c.CreatedAt.IsZero())

	name := "Annie"
	updated, err := repo.UpdateFields(ctx, "c1", customer.Fields{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Annie", updated.Name)
	assert.Equal(t, "a@example.com", updated.Email)

	all, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, "c1"))
	_, err = repo.Get(ctx, "c1")
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestReplayStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewReplayStore()

	_, claimed, err := s.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, claimed)

	id, claimed, err := s.Claim(ctx, "k")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, id, "in flight")

	require.NoError(t, s.Complete(ctx, "k", "o1"))
	id, _, err = s.Claim(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "o1", id)

	require.NoError(t, s.Release(ctx, "k"))
	_, claimed, err = s.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestAPIKeyRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewAPIKeyRepository()
	pepper := []byte("pepper")

	require.NoError(t, repo.Upsert(ctx, &auth.APIKeyInfo{ID: "k1", KeyHash: auth.HashAPIKey(pepper, "old")}))
	require.NoError(t, repo.Upsert(ctx, &auth.APIKeyInfo{ID: "k1", KeyHash: auth.HashAPIKey(pepper, "new"), Scopes: []string{auth.ScopeAdmin}}))

	_, err := repo.FindByHash(ctx, auth.HashAPIKey(pepper, "old"))
	require.Error(t, err, "rotated key is gone")

	info, err := repo.FindByHash(ctx, auth.HashAPIKey(pepper, "new"))
	require.NoError(t, err)
	assert.True(t, info.HasScope(auth.ScopeAdmin))
}
