package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository is an in-memory order store.
type OrderRepository struct {
	mu   sync.RWMutex
	byID map[string]order.Order
}

// NewOrderRepository returns an empty order store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{byID: make(map[string]order.Order)}
}

// Create stores a copy of the order.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	stored := *o
	stored.Lines = slices.Clone(o.Lines)
	for i := range stored.Lines {
		stored.Lines[i].ProductName = ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[o.ID] = stored
	return nil
}

// Get returns an order by ID.
func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	o.Lines = slices.Clone(o.Lines)
	return &o, nil
}

// List returns orders newest first.
func (r *OrderRepository) List(_ context.Context, limit, offset int) ([]order.Order, error) {
	r.mu.RLock()
	all := make([]order.Order, 0, len(r.byID))
	for _, o := range r.byID {
		o.Lines = slices.Clone(o.Lines)
		all = append(all, o)
	}
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	start := min(offset, len(all))
	end := min(start+limit, len(all))
	return all[start:end], nil
}

// UpdateStatus overwrites the order status.
func (r *OrderRepository) UpdateStatus(_ context.Context, id string, status order.Status) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	o.Status = status
	r.byID[id] = o
	o.Lines = slices.Clone(o.Lines)
	return &o, nil
}

// Delete removes an order.
func (r *OrderRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return order.ErrOrderNotFound
	}
	delete(r.byID, id)
	return nil
}

// Len returns the number of stored orders.
func (r *OrderRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
