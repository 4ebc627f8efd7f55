// Command seed-db applies the schema and loads suppliers, products and a
// default API key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/boutique-pos/internal/domain/auth"
	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/domain/supplier"
	"github.com/xenking/boutique-pos/internal/storage/postgres"
)

type supplierJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContactPerson string `json:"contactPerson"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	TaxNumber     string `json:"taxNumber"`
}

type options struct {
	databaseURL   string
	productsFile  string
	suppliersFile string
	apiKey        string
	apiKeyPepper  string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.suppliersFile, "suppliers-file", "db/seed/suppliers.json", "path to suppliers JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or POS_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or POS_API_KEY_PEPPER env)")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("POS_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or POS_SEED_API_KEY")
		os.Exit(1)
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("POS_API_KEY_PEPPER")
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

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Suppliers first: products reference them.
	if err := seedSuppliers(ctx, postgres.NewSupplierRepository(pool), opts.suppliersFile); err != nil {
		return errors.Wrap(err, "seed suppliers")
	}
	if err := seedProducts(ctx, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), opts.apiKey, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func readJSON(path string, v any) error {
	slog.Info("reading seed file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read file")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "parse JSON")
	}
	return nil
}

func seedSuppliers(ctx context.Context, repo *postgres.SupplierRepository, path string) error {
	var suppliers []supplierJSON
	if err := readJSON(path, &suppliers); err != nil {
		return err
	}

	slog.Info("upserting suppliers", slog.Int("count", len(suppliers)))

	for _, s := range suppliers {
		if err := repo.Upsert(ctx, &supplier.Supplier{
			ID:            s.ID,
			Name:          s.Name,
			ContactPerson: s.ContactPerson,
			Phone:         s.Phone,
			Email:         s.Email,
			Address:       s.Address,
			TaxNumber:     s.TaxNumber,
		}); err != nil {
			return errors.Wrapf(err, "upsert supplier %s", s.ID)
		}

		slog.Info("upserted supplier", slog.String("id", s.ID), slog.String("name", s.Name))
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, path string) error {
	var products []product.Product
	if err := readJSON(path, &products); err != nil {
		return err
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for i := range products {
		p := &products[i]
		if p.Unit == "" {
			p.Unit = product.UnitPiece
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.Barcode)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default store key",
		Scopes:  []string{auth.ScopeCatalogWrite, auth.ScopeSalesWrite, auth.ScopeSalesRead},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
