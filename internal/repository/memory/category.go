package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/category"
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository is an in-memory category store.
type CategoryRepository struct {
	mu         sync.RWMutex
	categories map[string]category.Category
}

// NewCategoryRepository returns a store seeded with categories.
func NewCategoryRepository(categories ...category.Category) *CategoryRepository {
	r := &CategoryRepository{categories: make(map[string]category.Category, len(categories))}
	for _, c := range categories {
		r.categories[c.ID] = c
	}
	return r
}

func (r *CategoryRepository) Get(_ context.Context, id string) (*category.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[id]
	if !ok {
		return nil, category.ErrNotFound
	}
	return &c, nil
}

func (r *CategoryRepository) List(_ context.Context) ([]category.Category, error) {
	r.mu.RLock()
	out := make([]category.Category, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b category.Category) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *CategoryRepository) Create(_ context.Context, c *category.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[c.ID]; ok {
		return errors.Wrapf(category.ErrAlreadyExists, "category %s", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.categories[c.ID] = *c
	return nil
}

func (r *CategoryRepository) Update(_ context.Context, id string, f category.Fields) (*category.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.categories[id]
	if !ok {
		return nil, category.ErrNotFound
	}
	f.Apply(&c)
	r.categories[id] = c
	return &c, nil
}

func (r *CategoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[id]; !ok {
		return category.ErrNotFound
	}
	delete(r.categories, id)
	return nil
}
