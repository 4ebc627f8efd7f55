package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/domain/supplier"
)

const productColumns = `id, barcode, name, category, description, purchase_price, sale_price,
	stock, min_stock, unit, shelf_location, supplier_id, is_active, sizes, colors,
	material, brand, season, pattern, care_instructions, created_at, updated_at`

const (
	getProductByIDSQL      = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductByBarcodeSQL = `SELECT ` + productColumns + ` FROM products WHERE barcode = $1`
	getProductsByIDsSQL    = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	insertProductSQL = `INSERT INTO products (id, barcode, name, category, description,
		purchase_price, sale_price, stock, min_stock, unit, shelf_location, supplier_id,
		is_active, sizes, colors, material, brand, season, pattern, care_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at`

	updateProductSQL = `UPDATE products SET barcode = $2, name = $3, category = $4,
		description = $5, purchase_price = $6, sale_price = $7, stock = $8, min_stock = $9,
		unit = $10, shelf_location = $11, supplier_id = $12, is_active = $13, sizes = $14,
		colors = $15, material = $16, brand = $17, season = $18, pattern = $19,
		care_instructions = $20, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	upsertProductSQL = `INSERT INTO products (id, barcode, name, category, description,
		purchase_price, sale_price, stock, min_stock, unit, shelf_location, supplier_id,
		is_active, sizes, colors, material, brand, season, pattern, care_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (barcode) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category,
		description = EXCLUDED.description, purchase_price = EXCLUDED.purchase_price,
		sale_price = EXCLUDED.sale_price, stock = EXCLUDED.stock, min_stock = EXCLUDED.min_stock,
		unit = EXCLUDED.unit, supplier_id = EXCLUDED.supplier_id, is_active = EXCLUDED.is_active,
		sizes = EXCLUDED.sizes, colors = EXCLUDED.colors, material = EXCLUDED.material,
		brand = EXCLUDED.brand, season = EXCLUDED.season, pattern = EXCLUDED.pattern,
		care_instructions = EXCLUDED.care_instructions, updated_at = NOW()
		RETURNING id, created_at, updated_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
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

// List returns one page of products ordered by name.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) (product.Page, error) {
	page, size := normalizePage(f.Page, f.PageSize)

	var c conditions
	if f.Search != "" {
		like := "%" + f.Search + "%"
		c.add("(name ILIKE ? OR brand ILIKE ? OR barcode = ?)", like, like, f.Search)
	}
	if f.Category != "" {
		c.add("category = ?", f.Category)
	}
	if f.LowStock {
		c.addRaw(fmt.Sprintf("stock <= GREATEST(min_stock, %d)", product.LowStock))
	}
	if f.ActiveOnly {
		c.addRaw("is_active")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+c.where(), c.args...).Scan(&total); err != nil {
		return product.Page{}, fmt.Errorf("counting products: %w", err)
	}

	limit, args := c.limit(page, size)
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products`+c.where()+` ORDER BY name, id`+limit, args...)
	if err != nil {
		return product.Page{}, fmt.Errorf("listing products: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return product.Page{}, fmt.Errorf("listing products: %w", err)
	}

	return product.Page{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetByBarcode returns the product printed with barcode.
func (r *ProductRepository) GetByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	return r.getOne(ctx, getProductByBarcodeSQL, barcode)
}

func (r *ProductRepository) getOne(ctx context.Context, sql, key string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", key, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", key, err)
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

// Create inserts p and fills its timestamps.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, insertProductSQL, productArgs(p)...).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return product.ErrDuplicateBarcode
		case isForeignKeyViolation(err):
			return supplier.ErrNotFound
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update overwrites every column of p.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, updateProductSQL, productArgs(p)...).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return product.ErrNotFound
		case isUniqueViolation(err):
			return product.ErrDuplicateBarcode
		case isForeignKeyViolation(err):
			return supplier.ErrNotFound
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	return nil
}

// Upsert inserts p or updates the product already holding its barcode. On
// conflict p.ID is replaced with the stored id.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, upsertProductSQL, productArgs(p)...).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Barcode, err)
	}
	return nil
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

func productArgs(p *product.Product) []any {
	var supplierID *string
	if p.SupplierID != "" {
		supplierID = &p.SupplierID
	}
	return []any{
		p.ID, p.Barcode, p.Name, p.Category, p.Description,
		p.PurchasePrice, p.SalePrice, p.Stock, p.MinStock, string(p.Unit),
		p.ShelfLocation, supplierID, p.IsActive, nonNil(p.Sizes), nonNil(p.Colors),
		p.Material, p.Brand, string(p.Season), p.Pattern, p.CareInstructions,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p          product.Product
		unit       string
		season     string
		supplierID *string
	)
	err := row.Scan(
		&p.ID, &p.Barcode, &p.Name, &p.Category, &p.Description,
		&p.PurchasePrice, &p.SalePrice, &p.Stock, &p.MinStock, &unit,
		&p.ShelfLocation, &supplierID, &p.IsActive, &p.Sizes, &p.Colors,
		&p.Material, &p.Brand, &season, &p.Pattern, &p.CareInstructions,
		&p.CreatedAt, &p.UpdatedAt,
	)
	p.Unit = product.Unit(unit)
	p.Season = product.Season(season)
	if supplierID != nil {
		p.SupplierID = *supplierID
	}
	return p, err
}
