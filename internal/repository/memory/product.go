// Package memory provides in-process implementations of the storefront
// stores. Stock changes are serialized per product; reservations on
// different products never contend.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

type productEntry struct {
	mu sync.Mutex
	p  product.Product
}

// ProductRepository is an in-memory catalog.
type ProductRepository struct {
	mu      sync.RWMutex
	entries map[string]*productEntry
}

// NewProductRepository returns an empty catalog seeded with products.
func NewProductRepository(products ...product.Product) *ProductRepository {
	r := &ProductRepository{entries: make(map[string]*productEntry, len(products))}
	for _, p := range products {
		r.entries[p.ID] = &productEntry{p: p}
	}
	return r
}

func (r *ProductRepository) entry(id string) (*productEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (e *productEntry) snapshot() product.Product {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, product.ErrNotFound
	}
	p := e.snapshot()
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.entry(id); ok {
			out = append(out, e.snapshot())
		}
	}
	return out, nil
}

// List returns a filtered page of products ordered by creation time and
// the total number of matches.
func (r *ProductRepository) List(_ context.Context, page product.Page) ([]product.Product, int, error) {
	r.mu.RLock()
	all := make([]product.Product, 0, len(r.entries))
	for _, e := range r.entries {
		all = append(all, e.snapshot())
	}
	r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(page.Search))
	matched := all[:0]
	for _, p := range all {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		if page.Match(p) {
			matched = append(matched, p)
		}
	}
	slices.SortFunc(matched, func(a, b product.Product) int {
		c := b.CreatedAt.Compare(a.CreatedAt)
		if page.Sort == product.SortOldest {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.Limit, total)
	return slices.Clone(matched[start:end]), total, nil
}

// CountInCategory returns the number of products in a category.
func (r *ProductRepository) CountInCategory(_ context.Context, categoryID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.snapshot().CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[p.ID]; ok {
		return errors.Wrapf(product.ErrAlreadyExists, "product %s", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.entries[p.ID] = &productEntry{p: *p}
	return nil
}

// Update changes the descriptive fields of a product.
func (r *ProductRepository) Update(_ context.Context, id string, f product.Fields) (*product.Product, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, product.ErrNotFound
	}
	e.mu.Lock()
	f.Apply(&e.p)
	p := e.p
	e.mu.Unlock()
	return &p, nil
}

// UpdatePrice sets a new catalog price. Placed orders keep their captured
// prices.
func (r *ProductRepository) UpdatePrice(_ context.Context, id string, price decimal.Decimal) (*product.Product, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, product.ErrNotFound
	}
	e.mu.Lock()
	e.p.Price = price
	p := e.p
	e.mu.Unlock()
	return &p, nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return product.ErrNotFound
	}
	delete(r.entries, id)
	return nil
}

// TryReserveStock checks and decrements stock under the product's lock.
func (r *ProductRepository) TryReserveStock(_ context.Context, id string, qty int) (product.Reservation, error) {
	e, ok := r.entry(id)
	if !ok {
		return product.Reservation{ProductID: id, Quantity: qty}, product.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.p.Stock < qty {
		return product.Reservation{ProductID: id, Quantity: qty, Remaining: e.p.Stock}, product.ErrInsufficientStock
	}
	e.p.Stock -= qty
	return product.Reservation{ProductID: id, Quantity: qty, Remaining: e.p.Stock}, nil
}

// ReleaseStock returns previously reserved units.
func (r *ProductRepository) ReleaseStock(ctx context.Context, id string, qty int) error {
	_, err := r.Restock(ctx, id, qty)
	return err
}

// Restock atomically adds units and returns the new stock.
func (r *ProductRepository) Restock(_ context.Context, id string, qty int) (int, error) {
	e, ok := r.entry(id)
	if !ok {
		return 0, product.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if qty < 0 || e.p.Stock > product.MaxQuantity-qty {
		return e.p.Stock, errors.Wrapf(product.ErrInvalid, "stock of %s would exceed %d", id, product.MaxQuantity)
	}
	e.p.Stock += qty
	return e.p.Stock, nil
}
