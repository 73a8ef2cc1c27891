package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/internal/repository/memory"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
}

type categoryJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	apiKeyPepper string
	customers    int
	orders       int
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "path to products JSON file (default: embedded demo catalog)")
	flag.StringVar(&opts.apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.IntVar(&opts.customers, "customers", 3, "number of demo customers to register")
	flag.IntVar(&opts.orders, "orders", 0, "number of demo orders to place through the order engine")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCategories(ctx, repository.NewCategoryRepository(pool)); err != nil {
		return errors.Wrap(err, "seed categories")
	}

	products := repository.NewProductRepository(pool)
	ids, err := seedProducts(ctx, products, opts.productsFile)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(pool), opts.apiKey, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	customerIDs, err := seedCustomers(ctx, repository.NewCustomerRepository(pool), opts.customers)
	if err != nil {
		return errors.Wrap(err, "seed customers")
	}

	if opts.orders > 0 {
		if err := seedOrders(ctx, pool, products, ids, customerIDs, opts.orders); err != nil {
			return errors.Wrap(err, "seed orders")
		}
	}

	return nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, productsFile string) ([]string, error) {
	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))

		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return nil, errors.Wrap(err, "read products file")
		}
	}

	var items []productJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	slog.Info("creating products", slog.Int("count", len(items)))

	ids := make([]string, 0, len(items))
	for _, it := range items {
		p := &product.Product{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Price:       it.Price,
			Stock:       it.Stock,
			CategoryID:  it.Category,
		}
		if err := p.Validate(); err != nil {
			return nil, errors.Wrapf(err, "product %s", it.ID)
		}
		// Existing products keep their stock so a re-run does not restock.
		err := repo.Create(ctx, p)
		switch {
		case errors.Is(err, product.ErrAlreadyExists):
			slog.Info("product exists", slog.String("id", p.ID))
		case err != nil:
			return nil, errors.Wrapf(err, "create product %s", it.ID)
		default:
			slog.Info("created product", slog.String("id", p.ID), slog.String("name", p.Name), slog.Int("stock", p.Stock))
		}
		ids = append(ids, it.ID)
	}

	return ids, nil
}

func seedCategories(ctx context.Context, repo *repository.CategoryRepository) error {
	var items []categoryJSON
	if err := json.Unmarshal(db.SeedCategories, &items); err != nil {
		return errors.Wrap(err, "parse categories JSON")
	}

	for _, it := range items {
		c := &category.Category{ID: it.ID, Name: it.Name, Description: it.Description}
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "category %s", it.ID)
		}
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert category %s", it.ID)
		}
		slog.Info("upserted category", slog.String("id", c.ID), slog.String("name", c.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo auth.Repository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := repo.Upsert(ctx, &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default admin key"))

	return nil
}

func seedCustomers(ctx context.Context, repo customer.Repository, n int) ([]string, error) {
	svc := customer.NewService(repo, nil, 0)

	ids := make([]string, 0, n)
	for i := range n {
		email := fmt.Sprintf("demo%d@storefront.test", i+1)
		c, err := svc.Register(ctx, customer.Registration{
			Name:     fmt.Sprintf("Demo Customer %d", i+1),
			Email:    email,
			Password: "demo-password",
			Address:  fmt.Sprintf("%d Demo Street", i+1),
			Phone:    fmt.Sprintf("555000%04d", i+1),
		})
		if errors.Is(err, customer.ErrEmailTaken) {
			if c, err = repo.GetByEmail(ctx, email); err != nil {
				return nil, errors.Wrapf(err, "get customer %s", email)
			}
			ids = append(ids, c.ID)
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "register customer %s", email)
		}
		ids = append(ids, c.ID)

		slog.Info("registered customer", slog.String("id", c.ID), slog.String("email", c.Email))
	}

	return ids, nil
}

// seedOrders places random carts through the order engine so demo stock and
// order history stay consistent.
func seedOrders(ctx context.Context, pool *pgxpool.Pool, products *repository.ProductRepository, productIDs, customerIDs []string, n int) error {
	if len(customerIDs) == 0 || len(productIDs) == 0 {
		return errors.New("orders need at least one customer and one product")
	}

	svc, err := order.NewService(products, repository.NewCustomerRepository(pool), repository.NewOrderRepository(pool), order.Config{
		Replays: memory.NewReplayStore(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	var placed, rejected int
	for i := range n {
		lines := make([]order.LineRequest, 1+rand.IntN(3))
		for j := range lines {
			lines[j] = order.LineRequest{
				ProductID: productIDs[rand.IntN(len(productIDs))],
				Quantity:  1 + rand.IntN(2),
			}
		}

		o, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
			CustomerID:      customerIDs[i%len(customerIDs)],
			Lines:           lines,
			ShippingAddress: "Demo Street",
			IdempotencyKey:  fmt.Sprintf("seed-%d", i),
		})
		var ise *order.InsufficientStockError
		switch {
		case errors.As(err, &ise):
			rejected++
			slog.Info("order rejected", slog.String("product_id", ise.ProductID), slog.Int("available", ise.Available))
			continue
		case err != nil:
			return errors.Wrapf(err, "place order %d", i)
		}
		placed++

		slog.Info("placed order", slog.String("id", o.ID), slog.String("total", o.Total.StringFixed(2)))
	}

	slog.Info("seeded orders", slog.Int("placed", placed), slog.Int("rejected", rejected))

	return nil
}
