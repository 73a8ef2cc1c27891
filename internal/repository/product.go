package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, stock, category_id, created_at`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	productFilter = ` WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		AND ($2 = '' OR category_id = $2)
		AND ($3::numeric IS NULL OR price >= $3)
		AND ($4::numeric IS NULL OR price <= $4)`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products` + productFilter + `
		ORDER BY
			CASE WHEN $5 THEN created_at END ASC,
			CASE WHEN NOT $5 THEN created_at END DESC,
			id
		LIMIT $6 OFFSET $7`

	countProductsSQL = `SELECT count(*) FROM products` + productFilter

	countInCategorySQL = `SELECT count(*) FROM products WHERE category_id = $1`

	createProductSQL = `INSERT INTO products (id, name, description, price, stock, category_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	upsertProductSQL = `INSERT INTO products (id, name, description, price, stock, category_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			stock = products.stock + EXCLUDED.stock,
			category_id = EXCLUDED.category_id`

	updateProductSQL = `UPDATE products SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			category_id = COALESCE($4, category_id)
		WHERE id = $1
		RETURNING ` + productColumns

	updateProductPriceSQL = `UPDATE products SET price = $2 WHERE id = $1
		RETURNING ` + productColumns

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	// The stock guard and the decrement are one statement, so concurrent
	// reservations on the same row serialize on the row lock.
	reserveStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING stock`

	getStockSQL = `SELECT stock FROM products WHERE id = $1`

	addStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1
		RETURNING stock`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// List returns a filtered page of products and the total number of
// matches.
func (r *ProductRepository) List(ctx context.Context, page product.Page) ([]product.Product, int, error) {
	search := escapeLike(page.Search)
	filter := []any{search, page.CategoryID, page.MinPrice, page.MaxPrice}

	var total int
	if err := r.pool.QueryRow(ctx, countProductsSQL, filter...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	args := append(filter, page.Sort == product.SortOldest, page.Limit, page.Offset())
	rows, err := r.pool.Query(ctx, listProductsSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	return products, total, nil
}

// Create inserts a new product and fills in its creation time.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, createProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.CategoryID,
	).Scan(&p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(product.ErrAlreadyExists, "product %s", p.ID)
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Upsert inserts a product or, when the ID exists, replaces its
// descriptive fields and price and adds p.Stock units to the current stock.
// The increment is applied under the row lock, so reservations running
// concurrently are preserved.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.CategoryID,
	)
	if err != nil {
		if isOutOfRange(err) {
			return errors.Wrapf(product.ErrInvalid, "stock of %s would exceed %d", p.ID, product.MaxQuantity)
		}
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// Update changes the descriptive fields of a product.
func (r *ProductRepository) Update(ctx context.Context, id string, f product.Fields) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, updateProductSQL, id, f.Name, f.Description, f.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("updating product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("updating product %q: %w", id, err)
	}
	return &p, nil
}

// CountInCategory returns the number of products in a category.
func (r *ProductRepository) CountInCategory(ctx context.Context, categoryID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countInCategorySQL, categoryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products in category %q: %w", categoryID, err)
	}
	return n, nil
}

// UpdatePrice sets a new catalog price.
func (r *ProductRepository) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, updateProductPriceSQL, id, price)
	if err != nil {
		return nil, fmt.Errorf("updating price of product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("updating price of product %q: %w", id, err)
	}
	return &p, nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// TryReserveStock atomically decrements stock when enough is available.
func (r *ProductRepository) TryReserveStock(ctx context.Context, id string, qty int) (product.Reservation, error) {
	res := product.Reservation{ProductID: id, Quantity: qty}

	err := r.pool.QueryRow(ctx, reserveStockSQL, id, qty).Scan(&res.Remaining)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return res, fmt.Errorf("reserving %d of product %q: %w", qty, id, err)
	}

	// Either the product is gone or the guard rejected the decrement. The
	// stock read here is informational only.
	if err := r.pool.QueryRow(ctx, getStockSQL, id).Scan(&res.Remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return res, product.ErrNotFound
		}
		return res, fmt.Errorf("reading stock of product %q: %w", id, err)
	}
	return res, product.ErrInsufficientStock
}

// ReleaseStock returns previously reserved units.
func (r *ProductRepository) ReleaseStock(ctx context.Context, id string, qty int) error {
	_, err := r.Restock(ctx, id, qty)
	return err
}

// Restock atomically adds units and returns the new stock.
func (r *ProductRepository) Restock(ctx context.Context, id string, qty int) (int, error) {
	var stock int
	if err := r.pool.QueryRow(ctx, addStockSQL, id, qty).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, product.ErrNotFound
		}
		if isOutOfRange(err) {
			return 0, errors.Wrapf(product.ErrInvalid, "stock of %s would exceed %d", id, product.MaxQuantity)
		}
		return 0, fmt.Errorf("adding %d to stock of product %q: %w", qty, id, err)
	}
	return stock, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.CategoryID, &p.CreatedAt,
	)
	p.Price = price
	return p, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(strings.TrimSpace(s))
}
