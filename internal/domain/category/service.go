package category

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Usage counts the products that reference a category.
type Usage interface {
	CountInCategory(ctx context.Context, categoryID string) (int, error)
}

// Service manages categories.
type Service struct {
	repo  Repository
	usage Usage
}

// NewService creates a Service.
func NewService(repo Repository, usage Usage) *Service {
	return &Service{repo: repo, usage: usage}
}

// Create validates and stores a category. An empty ID is generated.
func (s *Service) Create(ctx context.Context, c *Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return s.repo.Create(ctx, c)
}

// Get returns a single category.
func (s *Service) Get(ctx context.Context, id string) (*Category, error) {
	return s.repo.Get(ctx, id)
}

// List returns every category.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, f Fields) (*Category, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, f)
}

// Delete removes a category that no product references.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.usage.CountInCategory(ctx, id)
	if err != nil {
		return errors.Wrap(err, "count products in category")
	}
	if n > 0 {
		return errors.Wrapf(ErrInUse, "%d products reference %s", n, id)
	}
	return s.repo.Delete(ctx, id)
}
