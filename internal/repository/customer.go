package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/customer"
)

const (
	customerColumns = `id, name, email, password_hash, address, phone, role, created_at`

	getCustomerSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	getCustomerByEmailSQL = `SELECT ` + customerColumns + ` FROM customers WHERE email = $1`

	listCustomersSQL = `SELECT ` + customerColumns + ` FROM customers
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`

	insertCustomerSQL = `INSERT INTO customers (id, name, email, password_hash, address, phone, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	updateCustomerSQL = `UPDATE customers SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			address = COALESCE($4, address),
			phone = COALESCE($5, phone),
			password_hash = COALESCE($6, password_hash)
		WHERE id = $1
		RETURNING ` + customerColumns

	deleteCustomerSQL = `DELETE FROM customers WHERE id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Get returns a customer by ID.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	return r.getOne(ctx, getCustomerSQL, id)
}

// GetByEmail returns a customer by email.
func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return r.getOne(ctx, getCustomerByEmailSQL, email)
}

func (r *CustomerRepository) getOne(ctx context.Context, query, arg string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", arg, err)
	}
	return &c, nil
}

// List returns customers ordered by creation time.
func (r *CustomerRepository) List(ctx context.Context, limit, offset int) ([]customer.Customer, error) {
	rows, err := r.pool.Query(ctx, listCustomersSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

// Insert stores a new customer and fills in its creation time.
func (r *CustomerRepository) Insert(ctx context.Context, c *customer.Customer) error {
	err := r.pool.QueryRow(ctx, insertCustomerSQL,
		c.ID, c.Name, c.Email, c.PasswordHash, c.Address, c.Phone, int16(c.Role),
	).Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return customer.ErrEmailTaken
		}
		return fmt.Errorf("inserting customer %q: %w", c.ID, err)
	}
	return nil
}

// UpdateFields applies a partial update. Unset fields keep their values.
func (r *CustomerRepository) UpdateFields(ctx context.Context, id string, f customer.Fields) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, updateCustomerSQL,
		id, f.Name, f.Email, f.Address, f.Phone, f.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("updating customer %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, customer.ErrNotFound
		case isUniqueViolation(err):
			return nil, customer.ErrEmailTaken
		}
		return nil, fmt.Errorf("updating customer %q: %w", id, err)
	}
	return &c, nil
}

// Delete removes a customer.
func (r *CustomerRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCustomerSQL, id)
	if err != nil {
		return fmt.Errorf("deleting customer %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c    customer.Customer
		role int16
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Address, &c.Phone, &role, &c.CreatedAt,
	)
	c.Role = customer.Role(role)
	return c, err
}
