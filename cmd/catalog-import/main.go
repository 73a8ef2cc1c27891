// Command catalog-import loads supplier feeds into the product catalog.
//
// Each feed is a gzip-compressed TSV file with the columns
// id, name, price, stock and category. A product is imported when it is
// offered by at least --min-feeds feeds; its stock is the sum of all offers
// and its price is the lowest offered price.
//
// Feed stock counts delivered units: it is added to the stock of products
// that already exist, so the import can run while orders are being placed.
// Categories that are not in the catalog are dropped from the imported
// products.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxFeeds      = 64
	writeWorkers  = 8
)

// offer is one feed line.
type offer struct {
	id       string
	name     string
	price    decimal.Decimal
	stock    int
	category string
}

// feedResult holds offers found in a single feed during pass 2, keyed by
// product ID. mask has one bit per feed the product was seen in.
type feedResult struct {
	offers map[string]offer
	mask   uint64
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		minFeeds    int
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing supplier feeds")
	flag.StringVar(&pattern, "pattern", "*.tsv.gz", "feed file name pattern inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&minFeeds, "min-feeds", 1, "import products offered by at least this many feeds")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and merge feeds without writing to the database")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, minFeeds, dryRun); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, minFeeds int, dryRun bool) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	switch {
	case len(files) == 0:
		return errors.Errorf("no feeds match %s in %s", pattern, dataDir)
	case len(files) > maxFeeds:
		return errors.Errorf("at most %d feeds are supported, got %d", maxFeeds, len(files))
	case minFeeds < 1 || minFeeds > len(files):
		return errors.Errorf("min-feeds must be between 1 and %d", len(files))
	}
	slices.Sort(files)

	var filters []*bloom.BloomFilter
	if minFeeds > 1 {
		// Pass 1: Build bloom filters concurrently.
		slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))

		if filters, err = buildBloomFilters(ctx, files); err != nil {
			return errors.Wrap(err, "build bloom filters")
		}
	}

	// Pass 2: Collect offers of products that may appear in other feeds.
	slog.Info("pass 2: collecting offers")

	results, err := collectOffers(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "collect offers")
	}

	products := mergeOffers(results, minFeeds)
	slog.Info("products to import", slog.Int("count", len(products)))

	if dryRun || len(products) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	categories, err := repository.NewCategoryRepository(pool).List(ctx)
	if err != nil {
		return errors.Wrap(err, "list categories")
	}
	if unknown := dropUnknownCategories(products, categories); len(unknown) > 0 {
		slog.Warn("importing products without unknown categories", slog.Any("categories", unknown))
	}

	return writeProducts(ctx, repository.NewProductRepository(pool), products)
}

// dropUnknownCategories clears category IDs that are not in known and
// returns them sorted.
func dropUnknownCategories(products []product.Product, known []category.Category) []string {
	ids := make(map[string]struct{}, len(known))
	for _, c := range known {
		ids[c.ID] = struct{}{}
	}
	var unknown []string
	for i := range products {
		id := products[i].CategoryID
		if id == "" {
			continue
		}
		if _, ok := ids[id]; ok {
			continue
		}
		products[i].CategoryID = ""
		if !slices.Contains(unknown, id) {
			unknown = append(unknown, id)
		}
	}
	slices.Sort(unknown)
	return unknown
}

// buildBloomFilters creates one bloom filter of product IDs per feed,
// concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64

			if err := streamFeed(ctx, path, func(o offer) {
				filter.AddString(o.id)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("feed", i+1), slog.Uint64("offers", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for feed %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("feed", i+1), slog.Uint64("total_offers", count))

			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

// collectOffers re-streams each feed and keeps offers whose product ID is
// present in another feed's bloom filter. Without filters every offer is
// kept. A false positive only adds the feed's own bit, so mergeOffers stays
// exact.
func collectOffers(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]feedResult, error) {
	results := make([]feedResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			offers := make(map[string]offer)
			var count uint64

			if err := streamFeed(ctx, path, func(o offer) {
				count++
				if filters != nil && !inOtherFeed(filters, i, o.id) {
					return
				}
				if prev, ok := offers[o.id]; ok {
					// Repeated lines within one feed add up.
					o.stock += prev.stock
					if prev.price.LessThan(o.price) {
						o.price = prev.price
					}
				}
				offers[o.id] = o
			}); err != nil {
				return errors.Wrapf(err, "scan feed %d", i+1)
			}

			slog.Info("pass 2 complete",
				slog.Int("feed", i+1),
				slog.Uint64("total_offers", count),
				slog.Int("candidates", len(offers)),
			)

			results[i] = feedResult{offers: offers, mask: 1 << uint(i)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func inOtherFeed(filters []*bloom.BloomFilter, idx int, id string) bool {
	for j, f := range filters {
		if j != idx && f.TestString(id) {
			return true
		}
	}
	return false
}

// mergeOffers combines per-feed offers into products offered by at least
// minFeeds feeds. Name and category come from the first feed in order.
func mergeOffers(results []feedResult, minFeeds int) []product.Product {
	type merged struct {
		p    product.Product
		mask uint64
	}
	byID := make(map[string]*merged)
	for _, r := range results {
		for id, o := range r.offers {
			m, ok := byID[id]
			if !ok {
				byID[id] = &merged{
					p: product.Product{
						ID:         id,
						Name:       o.name,
						Price:      o.price,
						Stock:      o.stock,
						CategoryID: o.category,
					},
					mask: r.mask,
				}
				continue
			}
			m.mask |= r.mask
			m.p.Stock += o.stock
			if o.price.LessThan(m.p.Price) {
				m.p.Price = o.price
			}
		}
	}

	out := make([]product.Product, 0, len(byID))
	for _, m := range byID {
		if bits.OnesCount64(m.mask) >= minFeeds {
			out = append(out, m.p)
		}
	}
	slices.SortFunc(out, func(a, b product.Product) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// streamFeed opens a gzip-compressed TSV feed and calls fn for each valid
// line. Malformed lines are logged and skipped.
func streamFeed(ctx context.Context, path string, fn func(o offer)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return readFeed(ctx, gz, func(line int, o offer, err error) {
		if err != nil {
			slog.Warn("skip feed line", slog.String("feed", path), slog.Int("line", line), slog.String("error", err.Error()))
			return
		}
		fn(o)
	})
}

func readFeed(ctx context.Context, r io.Reader, fn func(line int, o offer, err error)) error {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.LazyQuotes = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			fn(line, offer{}, err)
			continue
		}
		if err != nil {
			return errors.Wrap(err, "read feed")
		}
		if line == 1 && strings.EqualFold(rec[0], "id") {
			continue
		}
		o, err := parseOffer(rec)
		fn(line, o, err)
	}
}

func parseOffer(rec []string) (offer, error) {
	if len(rec) != 5 {
		return offer{}, errors.Errorf("want 5 columns, got %d", len(rec))
	}
	o := offer{
		id:       strings.TrimSpace(rec[0]),
		name:     strings.TrimSpace(rec[1]),
		category: strings.TrimSpace(rec[4]),
	}
	if o.id == "" || o.name == "" {
		return offer{}, errors.New("id and name are required")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil {
		return offer{}, errors.Wrap(err, "price")
	}
	if price.IsNegative() {
		return offer{}, errors.New("price must not be negative")
	}
	stock, err := strconv.Atoi(strings.TrimSpace(rec[3]))
	if err != nil {
		return offer{}, errors.Wrap(err, "stock")
	}
	if stock < 0 {
		return offer{}, errors.New("stock must not be negative")
	}
	o.price = price
	o.stock = stock
	return o, nil
}

// writeProducts upserts all merged products into the catalog, adding their
// stock to existing rows.
func writeProducts(ctx context.Context, repo *repository.ProductRepository, products []product.Product) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writeWorkers)
	for i := range products {
		p := &products[i]
		g.Go(func() error {
			if err := repo.Upsert(ctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
			if (i+1)%1000 == 0 || i+1 == len(products) {
				slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(products)))
			}
			return nil
		})
	}

	return g.Wait()
}
