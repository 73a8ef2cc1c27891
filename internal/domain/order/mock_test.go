package order

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockCatalog struct {
	mu       sync.Mutex
	products map[string]*product.Product

	getErr error
	// reserveErr fails TryReserveStock for the given product.
	reserveErr map[string]error
	// onReserve runs before each reservation.
	onReserve  func(id string)
	releaseErr error

	reserved     []string
	released     []string
	releaseCalls int
	// reserveCtxErrs holds ctx.Err() as seen by each reservation.
	reserveCtxErrs []error
}

func newCatalog(products ...product.Product) *mockCatalog {
	m := &mockCatalog{
		products:   make(map[string]*product.Product, len(products)),
		reserveErr: make(map[string]error),
	}
	for i := range products {
		p := products[i]
		m.products[p.ID] = &p
	}
	return m
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockCatalog) TryReserveStock(ctx context.Context, id string, qty int) (product.Reservation, error) {
	if m.onReserve != nil {
		m.onReserve(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveCtxErrs = append(m.reserveCtxErrs, ctx.Err())

	r := product.Reservation{ProductID: id, Quantity: qty}
	if err := m.reserveErr[id]; err != nil {
		return r, err
	}
	p, ok := m.products[id]
	if !ok {
		return r, product.ErrNotFound
	}
	r.Remaining = p.Stock
	if p.Stock < qty {
		return r, product.ErrInsufficientStock
	}
	p.Stock -= qty
	r.Remaining = p.Stock
	m.reserved = append(m.reserved, id)
	return r, nil
}

func (m *mockCatalog) ReleaseStock(ctx context.Context, id string, qty int) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "release on dead context")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++
	if m.releaseErr != nil {
		return m.releaseErr
	}
	m.products[id].Stock += qty
	m.released = append(m.released, id)
	return nil
}

func (m *mockCatalog) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *mockCatalog) setPrice(id string, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id].Price = mustDecimal(price)
}

type mockCustomers struct {
	known map[string]bool
	err   error
}

func knownCustomers(ids ...string) *mockCustomers {
	m := &mockCustomers{known: make(map[string]bool)}
	for _, id := range ids {
		m.known[id] = true
	}
	return m
}

func (m *mockCustomers) Get(_ context.Context, id string) (*customer.Customer, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !m.known[id] {
		return nil, customer.ErrNotFound
	}
	return &customer.Customer{ID: id}, nil
}

type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]Order
	createErr error
	// commitErr is returned by Create after the order has been stored.
	commitErr error
	getErr    error
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.orders[o.ID] = *o
	return m.commitErr
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (m *mockOrderRepo) List(_ context.Context, limit, offset int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		out = append(out, o)
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status Status) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.Status = status
	m.orders[id] = o
	return &o, nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *mockOrderRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

type mockReplays struct {
	mu       sync.Mutex
	keys     map[string]string
	released []string
	claimErr error
	// completeErrs fails that many Complete calls before succeeding.
	completeErrs  int
	completeCalls int
}

func newReplays() *mockReplays {
	return &mockReplays{keys: make(map[string]string)}
}

func (m *mockReplays) Claim(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return "", false, m.claimErr
	}
	if id, ok := m.keys[key]; ok {
		return id, false, nil
	}
	m.keys[key] = ""
	return "", true, nil
}

func (m *mockReplays) Complete(_ context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++
	if m.completeCalls <= m.completeErrs {
		return errors.New("redis timeout")
	}
	m.keys[key] = orderID
	return nil
}

func (m *mockReplays) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}
