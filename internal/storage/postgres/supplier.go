package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/boutique-pos/internal/domain/supplier"
)

const (
	supplierColumns = `id, name, contact_person, phone, email, address, tax_number, created_at`

	listSuppliersSQL = `SELECT ` + supplierColumns + ` FROM suppliers
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR contact_person ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%'
		ORDER BY name, id`

	getSupplierByIDSQL = `SELECT ` + supplierColumns + ` FROM suppliers WHERE id = $1`

	insertSupplierSQL = `INSERT INTO suppliers (id, name, contact_person, phone, email, address, tax_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	upsertSupplierSQL = `INSERT INTO suppliers (id, name, contact_person, phone, email, address, tax_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, contact_person = EXCLUDED.contact_person,
		phone = EXCLUDED.phone, email = EXCLUDED.email, address = EXCLUDED.address,
		tax_number = EXCLUDED.tax_number
		RETURNING created_at`

	updateSupplierSQL = `UPDATE suppliers SET name = $2, contact_person = $3, phone = $4,
		email = $5, address = $6, tax_number = $7
		WHERE id = $1
		RETURNING created_at`

	deleteSupplierSQL = `DELETE FROM suppliers WHERE id = $1`
)

var _ supplier.Repository = (*SupplierRepository)(nil)

// SupplierRepository implements supplier.Repository backed by PostgreSQL.
type SupplierRepository struct {
	pool *pgxpool.Pool
}

// NewSupplierRepository returns a SupplierRepository that uses the given pool.
func NewSupplierRepository(pool *pgxpool.Pool) *SupplierRepository {
	return &SupplierRepository{pool: pool}
}

func (r *SupplierRepository) List(ctx context.Context, search string) ([]supplier.Supplier, error) {
	rows, err := r.pool.Query(ctx, listSuppliersSQL, search)
	if err != nil {
		return nil, fmt.Errorf("listing suppliers: %w", err)
	}
	return pgx.CollectRows(rows, scanSupplier)
}

func (r *SupplierRepository) GetByID(ctx context.Context, id string) (*supplier.Supplier, error) {
	rows, err := r.pool.Query(ctx, getSupplierByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting supplier %q: %w", id, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanSupplier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, supplier.ErrNotFound
		}
		return nil, fmt.Errorf("getting supplier %q: %w", id, err)
	}
	return &s, nil
}

func (r *SupplierRepository) Create(ctx context.Context, s *supplier.Supplier) error {
	if err := r.pool.QueryRow(ctx, insertSupplierSQL, supplierArgs(s)...).Scan(&s.CreatedAt); err != nil {
		return fmt.Errorf("creating supplier %q: %w", s.ID, err)
	}
	return nil
}

// Upsert inserts s or overwrites the supplier with the same id.
func (r *SupplierRepository) Upsert(ctx context.Context, s *supplier.Supplier) error {
	if err := r.pool.QueryRow(ctx, upsertSupplierSQL, supplierArgs(s)...).Scan(&s.CreatedAt); err != nil {
		return fmt.Errorf("upserting supplier %q: %w", s.ID, err)
	}
	return nil
}

func (r *SupplierRepository) Update(ctx context.Context, s *supplier.Supplier) error {
	if err := r.pool.QueryRow(ctx, updateSupplierSQL, supplierArgs(s)...).Scan(&s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return supplier.ErrNotFound
		}
		return fmt.Errorf("updating supplier %q: %w", s.ID, err)
	}
	return nil
}

// Delete removes a supplier. Products referencing it keep existing with no
// supplier.
func (r *SupplierRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteSupplierSQL, id)
	if err != nil {
		return fmt.Errorf("deleting supplier %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return supplier.ErrNotFound
	}
	return nil
}

func supplierArgs(s *supplier.Supplier) []any {
	return []any{s.ID, s.Name, s.ContactPerson, s.Phone, s.Email, s.Address, s.TaxNumber}
}

func scanSupplier(row pgx.CollectableRow) (supplier.Supplier, error) {
	var s supplier.Supplier
	err := row.Scan(
		&s.ID, &s.Name, &s.ContactPerson, &s.Phone, &s.Email, &s.Address, &s.TaxNumber, &s.CreatedAt,
	)
	return s, err
}
