package product

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned by TryReserveStock when the product
	// holds fewer units than requested. Stock is left untouched.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalid is returned when a product record fails validation.
	ErrInvalid = errors.New("invalid product")
	// ErrAlreadyExists is returned by Create for a taken product ID.
	ErrAlreadyExists = errors.New("product already exists")
	// ErrUnknownCategory is returned when a product references a category
	// that does not exist.
	ErrUnknownCategory = errors.New("unknown category")
)

// MaxQuantity is the largest stock count and the largest single quantity
// a product accepts. Stock is stored as a 32-bit integer.
const MaxQuantity = math.MaxInt32

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryID  string
	CreatedAt   time.Time

	// CategoryName is joined on reads and never stored.
	CategoryName string
}

// Validate checks the invariants of a new catalog record.
func (p *Product) Validate() error {
	switch {
	case p.Name == "":
		return errors.Wrap(ErrInvalid, "name required")
	case p.Price.IsNegative():
		return errors.Wrap(ErrInvalid, "price must not be negative")
	case p.Stock < 1:
		return errors.Wrap(ErrInvalid, "stock has to be at least 1")
	case p.Stock > MaxQuantity:
		return errors.Wrapf(ErrInvalid, "stock must not exceed %d", MaxQuantity)
	}
	return nil
}

// Fields is a partial update of the descriptive product fields. Nil fields
// are left unchanged. Price and stock have dedicated operations.
type Fields struct {
	Name        *string
	Description *string
	CategoryID  *string
}

// Empty reports whether f changes nothing.
func (f Fields) Empty() bool {
	return f.Name == nil && f.Description == nil && f.CategoryID == nil
}

// Validate checks the fields that are set.
func (f Fields) Validate() error {
	if f.Name != nil && *f.Name == "" {
		return errors.Wrap(ErrInvalid, "name required")
	}
	return nil
}

// Apply copies the set fields onto p.
func (f Fields) Apply(p *Product) {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Description != nil {
		p.Description = *f.Description
	}
	if f.CategoryID != nil {
		p.CategoryID = *f.CategoryID
	}
}

// Sort orders a listing by creation time.
type Sort int

const (
	SortNewest Sort = iota
	SortOldest
)

// ParseSort maps the "newest" and "oldest" query values. Empty selects
// SortNewest.
func ParseSort(s string) (Sort, error) {
	switch s {
	case "", "newest":
		return SortNewest, nil
	case "oldest":
		return SortOldest, nil
	default:
		return 0, errors.Wrapf(ErrInvalid, "unknown sort %q", s)
	}
}

// Page selects a filtered window of a listing. Page is zero-based.
type Page struct {
	Page   int
	Limit  int
	Search string

	CategoryID string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Sort       Sort
}

// ValidateFilter rejects negative or inverted price bounds.
func (p Page) ValidateFilter() error {
	switch {
	case p.MinPrice != nil && p.MinPrice.IsNegative():
		return errors.Wrap(ErrInvalid, "min price must not be negative")
	case p.MaxPrice != nil && p.MaxPrice.IsNegative():
		return errors.Wrap(ErrInvalid, "max price must not be negative")
	case p.MinPrice != nil && p.MaxPrice != nil && p.MinPrice.GreaterThan(*p.MaxPrice):
		return errors.Wrap(ErrInvalid, "min price exceeds max price")
	}
	return nil
}

// Match reports whether p passes the filter. Search is matched
// case-insensitively by the caller's store.
func (p Page) Match(pr Product) bool {
	switch {
	case p.CategoryID != "" && pr.CategoryID != p.CategoryID:
		return false
	case p.MinPrice != nil && pr.Price.LessThan(*p.MinPrice):
		return false
	case p.MaxPrice != nil && pr.Price.GreaterThan(*p.MaxPrice):
		return false
	}
	return true
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return p.Page * p.Limit
}

// Normalize applies the default limit of 10 and the maximum of 100.
func (p Page) Normalize() Page {
	if p.Page < 0 {
		p.Page = 0
	}
	switch {
	case p.Limit <= 0:
		p.Limit = 10
	case p.Limit > 100:
		p.Limit = 100
	}
	return p
}

// Reservation is the outcome of a successful stock reservation.
type Reservation struct {
	ProductID string
	Quantity  int
	// Remaining is the stock left after the reservation. On
	// ErrInsufficientStock it is the stock that was available.
	Remaining int
}

// Reader resolves catalog records.
type Reader interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	List(ctx context.Context, page Page) ([]Product, int, error)
}

// Stock is the only write path to product stock counters.
//
// TryReserveStock must check and decrement in a single step that is
// linearizable with every other reservation on the same product. When stock
// is short it returns ErrInsufficientStock and a Reservation whose
// Remaining is the stock it saw.
type Stock interface {
	TryReserveStock(ctx context.Context, id string, qty int) (Reservation, error)
	ReleaseStock(ctx context.Context, id string, qty int) error
	Restock(ctx context.Context, id string, qty int) (int, error)
}

// Repository defines the full catalog store.
type Repository interface {
	Reader
	Stock
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, id string, f Fields) (*Product, error)
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*Product, error)
	Delete(ctx context.Context, id string) error
	// CountInCategory returns the number of products referencing a category.
	CountInCategory(ctx context.Context, categoryID string) (int, error)
}
