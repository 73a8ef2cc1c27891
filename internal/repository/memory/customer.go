package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/storefront/internal/domain/customer"
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository is an in-memory customer store.
type CustomerRepository struct {
	mu   sync.RWMutex
	byID map[string]customer.Customer
}

// NewCustomerRepository returns a store seeded with customers.
func NewCustomerRepository(customers ...customer.Customer) *CustomerRepository {
	r := &CustomerRepository{byID: make(map[string]customer.Customer, len(customers))}
	for _, c := range customers {
		r.byID[c.ID] = c
	}
	return r
}

// Get returns a customer by ID.
func (r *CustomerRepository) Get(_ context.Context, id string) (*customer.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

// GetByEmail returns a customer by email.
func (r *CustomerRepository) GetByEmail(_ context.Context, email string) (*customer.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, customer.ErrNotFound
}

// List returns customers ordered by creation time.
func (r *CustomerRepository) List(_ context.Context, limit, offset int) ([]customer.Customer, error) {
	r.mu.RLock()
	all := make([]customer.Customer, 0, len(r.byID))
	for _, c := range r.byID {
		all = append(all, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b customer.Customer) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	start := min(offset, len(all))
	end := min(start+limit, len(all))
	return all[start:end], nil
}

// Insert stores a new customer. Emails are unique.
func (r *CustomerRepository) Insert(_ context.Context, c *customer.Customer) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == c.Email {
			return customer.ErrEmailTaken
		}
	}
	r.byID[c.ID] = *c
	return nil
}

// UpdateFields applies a partial update.
func (r *CustomerRepository) UpdateFields(_ context.Context, id string, f customer.Fields) (*customer.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	if f.Name != nil {
		c.Name = *f.Name
	}
	if f.Email != nil {
		c.Email = *f.Email
	}
	if f.Address != nil {
		c.Address = *f.Address
	}
	if f.Phone != nil {
		c.Phone = *f.Phone
	}
	if f.PasswordHash != nil {
		c.PasswordHash = *f.PasswordHash
	}
	r.byID[id] = c
	return &c, nil
}

// Delete removes a customer.
func (r *CustomerRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return customer.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}
