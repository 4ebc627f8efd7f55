// Command catalog-import loads gzipped JSON-lines supplier feeds into the
// product catalog. A barcode offered by more than one feed is a conflict and
// is left for a human to resolve.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	maxFeeds      = 64
	writeWorkers  = 8
)

// feedResult holds what pass 2 found in a single feed.
type feedResult struct {
	// products by barcode; the last line for a barcode wins.
	products map[string]product.Product
	// candidates maps barcodes that another feed's filter claims to this
	// feed's bit.
	candidates map[string]uint64
}

// importPlan is the outcome of scanning all feeds.
type importPlan struct {
	products  []product.Product
	conflicts []string
}

func main() {
	var (
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&pattern, "feeds", "data/feeds/*.jsonl.gz", "glob matching supplier feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "scan feeds and report without writing")
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

	if err := run(ctx, pattern, databaseURL, dryRun); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "glob %s", pattern)
	}
	if len(files) == 0 {
		return errors.Errorf("no feeds match %s", pattern)
	}
	if len(files) > maxFeeds {
		return errors.Errorf("%d feeds exceed the limit of %d", len(files), maxFeeds)
	}
	sort.Strings(files)

	plan, err := planImport(ctx, files)
	if err != nil {
		return err
	}

	for _, barcode := range plan.conflicts {
		slog.Warn("barcode offered by several feeds, skipped", slog.String("barcode", barcode))
	}
	slog.Info("import planned",
		slog.Int("products", len(plan.products)),
		slog.Int("conflicts", len(plan.conflicts)),
	)

	if dryRun || len(plan.products) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeProducts(ctx, postgres.NewProductRepository(pool), plan.products); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// planImport scans the feeds twice: once to build a bloom filter of barcodes
// per feed and once to collect products and find barcodes shared between
// feeds.
func planImport(ctx context.Context, files []string) (importPlan, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return importPlan{}, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: collecting products")

	results, err := collectProducts(ctx, files, filters)
	if err != nil {
		return importPlan{}, errors.Wrap(err, "collect products")
	}

	return mergeResults(results), nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

			stats, err := streamFeed(ctx, f, func(p product.Product) {
				filter.AddString(p.Barcode)
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for feed %d", i+1)
			}

			slog.Info("pass 1 complete",
				slog.String("feed", filepath.Base(f)),
				slog.Uint64("lines", stats.lines),
				slog.Uint64("invalid", stats.invalid),
			)

			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// collectProducts re-reads each feed, keeping its products and marking
// barcodes that any other feed's filter reports.
func collectProducts(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]feedResult, error) {
	results := make([]feedResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			res := feedResult{
				products:   make(map[string]product.Product),
				candidates: make(map[string]uint64),
			}
			feedBit := uint64(1) << uint(i)

			if _, err := streamFeed(ctx, f, func(p product.Product) {
				res.products[p.Barcode] = p
				for j, filter := range filters {
					if j == i {
						continue
					}
					if filter.TestString(p.Barcode) {
						res.candidates[p.Barcode] |= feedBit
						break
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan feed %d", i+1)
			}

			slog.Info("pass 2 complete",
				slog.String("feed", filepath.Base(f)),
				slog.Int("products", len(res.products)),
				slog.Int("candidates", len(res.candidates)),
			)

			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// mergeResults confirms conflicts exactly: a bloom false positive only ever
// sets one feed bit, a real duplicate sets at least two.
func mergeResults(results []feedResult) importPlan {
	merged := make(map[string]uint64)
	for _, r := range results {
		for barcode, mask := range r.candidates {
			merged[barcode] |= mask
		}
	}

	conflicts := make(map[string]struct{})
	for barcode, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			conflicts[barcode] = struct{}{}
		}
	}

	var plan importPlan
	for _, r := range results {
		for barcode, p := range r.products {
			if _, ok := conflicts[barcode]; ok {
				continue
			}
			plan.products = append(plan.products, p)
		}
	}
	for barcode := range conflicts {
		plan.conflicts = append(plan.conflicts, barcode)
	}

	sort.Slice(plan.products, func(i, j int) bool {
		return plan.products[i].Barcode < plan.products[j].Barcode
	})
	sort.Strings(plan.conflicts)

	return plan
}

// productUpserter is the subset of the product repository the import needs.
type productUpserter interface {
	Upsert(ctx context.Context, p *product.Product) error
}

// writeProducts upserts products by barcode with a bounded worker pool.
func writeProducts(ctx context.Context, repo productUpserter, products []product.Product) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writeWorkers)

	for i := range products {
		p := &products[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		g.Go(func() error {
			if err := repo.Upsert(ctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.Barcode)
			}
			return nil
		})

		if (i+1)%1000 == 0 || i+1 == len(products) {
			slog.Info("write progress", slog.Int("queued", i+1), slog.Int("total", len(products)))
		}
	}

	return g.Wait()
}
