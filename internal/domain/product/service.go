package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/category"
)

// Categories resolves the categories products reference.
type Categories interface {
	Get(ctx context.Context, id string) (*category.Category, error)
	List(ctx context.Context) ([]category.Category, error)
}

// Service implements catalog management on top of a Repository. Stock
// reservation bypasses it and goes straight to the Stock interface.
type Service struct {
	repo       Repository
	categories Categories
}

// NewService creates a catalog Service.
func NewService(repo Repository, categories Categories) *Service {
	return &Service{repo: repo, categories: categories}
}

// Get returns a product with its category name joined.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := []Product{*p}
	if err := s.joinCategoryNames(ctx, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

// List returns a filtered page of products and the number of matches.
func (s *Service) List(ctx context.Context, page Page) ([]Product, int, error) {
	page = page.Normalize()
	if err := page.ValidateFilter(); err != nil {
		return nil, 0, err
	}
	if page.CategoryID != "" {
		if err := s.checkCategory(ctx, page.CategoryID); err != nil {
			return nil, 0, err
		}
	}
	products, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list products")
	}
	if err := s.joinCategoryNames(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// Create validates and stores a new product. A non-empty CategoryID must
// reference an existing category.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.CategoryID != "" {
		if err := s.checkCategory(ctx, p.CategoryID); err != nil {
			return err
		}
	}
	return s.repo.Create(ctx, p)
}

// Update changes the descriptive fields of a product.
func (s *Service) Update(ctx context.Context, id string, f Fields) (*Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.CategoryID != nil && *f.CategoryID != "" {
		if err := s.checkCategory(ctx, *f.CategoryID); err != nil {
			return nil, err
		}
	}
	if f.Empty() {
		return s.Get(ctx, id)
	}
	p, err := s.repo.Update(ctx, id, f)
	if err != nil {
		return nil, err
	}
	out := []Product{*p}
	if err := s.joinCategoryNames(ctx, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

// UpdatePrice sets a new catalog price. Placed orders keep their captured
// prices.
func (s *Service) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*Product, error) {
	if price.IsNegative() {
		return nil, errors.Wrap(ErrInvalid, "price must not be negative")
	}
	return s.repo.UpdatePrice(ctx, id, price)
}

// Restock adds qty units and returns the new stock.
func (s *Service) Restock(ctx context.Context, id string, qty int) (int, error) {
	if qty < 1 || qty > MaxQuantity {
		return 0, errors.Wrapf(ErrInvalid, "restock quantity must be between 1 and %d", MaxQuantity)
	}
	return s.repo.Restock(ctx, id, qty)
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) checkCategory(ctx context.Context, id string) error {
	if _, err := s.categories.Get(ctx, id); err != nil {
		if errors.Is(err, category.ErrNotFound) {
			return errors.Wrapf(ErrUnknownCategory, "category %s", id)
		}
		return errors.Wrap(err, "get category")
	}
	return nil
}

func (s *Service) joinCategoryNames(ctx context.Context, products []Product) error {
	referenced := false
	for _, p := range products {
		if p.CategoryID != "" {
			referenced = true
			break
		}
	}
	if !referenced {
		return nil
	}

	categories, err := s.categories.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list categories")
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	for i := range products {
		products[i].CategoryName = names[products[i].CategoryID]
	}
	return nil
}
