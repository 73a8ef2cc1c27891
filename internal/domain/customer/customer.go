package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a requested customer does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrEmailTaken is returned when registering an email that is already in use.
	ErrEmailTaken = errors.New("email already taken")
)

// Role distinguishes administrators from regular customers.
type Role int

const (
	RoleAdmin    Role = 0
	RoleCustomer Role = 1
)

// Customer is an account record.
type Customer struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Address      string
	Phone        string
	Role         Role
	CreatedAt    time.Time
}

// Fields is a partial update. Nil pointers leave the column unchanged.
type Fields struct {
	Name         *string
	Email        *string
	Address      *string
	Phone        *string
	PasswordHash *string
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return f.Name == nil && f.Email == nil && f.Address == nil && f.Phone == nil && f.PasswordHash == nil
}

// Repository is a plain keyed store of customers.
type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	GetByEmail(ctx context.Context, email string) (*Customer, error)
	List(ctx context.Context, limit, offset int) ([]Customer, error)
	Insert(ctx context.Context, c *Customer) error
	UpdateFields(ctx context.Context, id string, f Fields) (*Customer, error)
	Delete(ctx context.Context, id string) error
}
