package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/category"
)

const (
	categoryColumns = `id, name, description, created_at`

	getCategorySQL = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

	listCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories ORDER BY name, id`

	createCategorySQL = `INSERT INTO categories (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	upsertCategorySQL = `INSERT INTO categories (id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description`

	updateCategorySQL = `UPDATE categories SET
			name = COALESCE($2, name),
			description = COALESCE($3, description)
		WHERE id = $1
		RETURNING ` + categoryColumns

	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

func (r *CategoryRepository) Get(ctx context.Context, id string) (*category.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[category.Category])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	return &c, nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]category.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[category.Category])
}

func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	err := r.pool.QueryRow(ctx, createCategorySQL, c.ID, c.Name, c.Description).Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(category.ErrAlreadyExists, "category %s", c.ID)
		}
		return fmt.Errorf("creating category %q: %w", c.ID, err)
	}
	return nil
}

// Upsert inserts or replaces a category. Used by seeding.
func (r *CategoryRepository) Upsert(ctx context.Context, c *category.Category) error {
	if _, err := r.pool.Exec(ctx, upsertCategorySQL, c.ID, c.Name, c.Description); err != nil {
		return fmt.Errorf("upserting category %q: %w", c.ID, err)
	}
	return nil
}

func (r *CategoryRepository) Update(ctx context.Context, id string, f category.Fields) (*category.Category, error) {
	rows, err := r.pool.Query(ctx, updateCategorySQL, id, f.Name, f.Description)
	if err != nil {
		return nil, fmt.Errorf("updating category %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[category.Category])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, fmt.Errorf("updating category %q: %w", id, err)
	}
	return &c, nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		return fmt.Errorf("deleting category %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}
