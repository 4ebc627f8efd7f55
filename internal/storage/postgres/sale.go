package postgres

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/domain/sale"
)

const (
	saleColumns = `id, number, subtotal, tax, total, payment_method, customer_id, cashier_id,
		status, cancel_reason, created_at, cancelled_at`

	insertSaleSQL = `INSERT INTO sales (id, subtotal, tax, total, payment_method, customer_id,
		cashier_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING number`

	insertSaleItemSQL = `INSERT INTO sale_items (sale_id, position, product_id, name, quantity,
		unit_price, discount_percent, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	decrementStockSQL = `UPDATE products SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	getSaleByIDSQL = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`

	lockSaleSQL = `SELECT status FROM sales WHERE id = $1 FOR UPDATE`

	cancelSaleSQL = `UPDATE sales SET status = $2, cancel_reason = $3, cancelled_at = $4 WHERE id = $1`

	restoreStockSQL = `UPDATE products p SET stock = p.stock + si.quantity, updated_at = NOW()
		FROM sale_items si
		WHERE si.sale_id = $1 AND si.product_id = p.id`

	getSaleItemsSQL = `SELECT sale_id, product_id, name, quantity, unit_price, discount_percent, line_total
		FROM sale_items WHERE sale_id = ANY($1) ORDER BY sale_id, position`
)

var _ sale.Repository = (*SaleRepository)(nil)

// SaleRepository implements sale.Repository backed by PostgreSQL.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// Create stores s with its items and decrements stock in a single
// transaction. A product without enough stock aborts the whole sale with a
// *sale.InsufficientStockError.
func (r *SaleRepository) Create(ctx context.Context, s *sale.Sale) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Lock product rows in a stable order.
		items := slices.Clone(s.Items)
		slices.SortFunc(items, func(a, b sale.Item) int { return cmp.Compare(a.ProductID, b.ProductID) })

		for _, it := range items {
			tag, err := tx.Exec(ctx, decrementStockSQL, it.Quantity, it.ProductID)
			if err != nil {
				return fmt.Errorf("decrementing stock of %q: %w", it.ProductID, err)
			}
			if tag.RowsAffected() == 1 {
				continue
			}

			var exists bool
			if err := tx.QueryRow(ctx, productExistsSQL, it.ProductID).Scan(&exists); err != nil {
				return fmt.Errorf("checking product %q: %w", it.ProductID, err)
			}
			if !exists {
				return fmt.Errorf("product %q: %w", it.ProductID, product.ErrNotFound)
			}
			return &sale.InsufficientStockError{ProductID: it.ProductID}
		}

		err := tx.QueryRow(ctx, insertSaleSQL,
			s.ID, s.Subtotal, s.Tax, s.Total, string(s.PaymentMethod), s.CustomerID,
			s.CashierID, string(s.Status), s.CreatedAt,
		).Scan(&s.Number)
		if err != nil {
			return fmt.Errorf("inserting sale: %w", err)
		}

		batch := &pgx.Batch{}
		for i, it := range s.Items {
			batch.Queue(insertSaleItemSQL,
				s.ID, i, it.ProductID, it.Name, it.Quantity,
				it.UnitPrice, it.DiscountPercent, it.LineTotal,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting sale items: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating sale %q: %w", s.ID, err)
	}
	return nil
}

// GetByID returns a sale with its items.
func (r *SaleRepository) GetByID(ctx context.Context, id string) (*sale.Sale, error) {
	return getSale(ctx, r.pool, id)
}

func getSale(ctx context.Context, q queryer, id string) (*sale.Sale, error) {
	rows, err := q.Query(ctx, getSaleByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting sale %q: %w", id, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sale.ErrNotFound
		}
		return nil, fmt.Errorf("getting sale %q: %w", id, err)
	}

	sales := []sale.Sale{s}
	if err := attachItems(ctx, q, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

// List returns one page of sales, newest first.
func (r *SaleRepository) List(ctx context.Context, f sale.Filter) (sale.Page, error) {
	page, size := normalizePage(f.Page, f.PageSize)

	var c conditions
	if !f.From.IsZero() {
		c.add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		c.add("created_at < ?", f.To)
	}
	if f.PaymentMethod != "" {
		c.add("payment_method = ?", string(f.PaymentMethod))
	}
	if f.CustomerID != "" {
		c.add("customer_id = ?", f.CustomerID)
	}
	if f.CashierID != "" {
		c.add("cashier_id = ?", f.CashierID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+c.where(), c.args...).Scan(&total); err != nil {
		return sale.Page{}, fmt.Errorf("counting sales: %w", err)
	}

	limit, args := c.limit(page, size)
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales`+c.where()+` ORDER BY number DESC`+limit, args...)
	if err != nil {
		return sale.Page{}, fmt.Errorf("listing sales: %w", err)
	}
	sales, err := pgx.CollectRows(rows, scanSale)
	if err != nil {
		return sale.Page{}, fmt.Errorf("listing sales: %w", err)
	}
	if err := attachItems(ctx, r.pool, sales); err != nil {
		return sale.Page{}, err
	}

	return sale.Page{Items: sales, Total: total, Page: page, PageSize: size}, nil
}

// Cancel marks a completed sale cancelled and puts its items back in stock.
func (r *SaleRepository) Cancel(ctx context.Context, id, reason string, at time.Time) (*sale.Sale, error) {
	var cancelled *sale.Sale
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, lockSaleSQL, id).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return sale.ErrNotFound
			}
			return fmt.Errorf("locking sale: %w", err)
		}
		if sale.Status(status) == sale.StatusCancelled {
			return sale.ErrAlreadyCancelled
		}

		if _, err := tx.Exec(ctx, cancelSaleSQL, id, string(sale.StatusCancelled), reason, at); err != nil {
			return fmt.Errorf("updating sale status: %w", err)
		}
		if _, err := tx.Exec(ctx, restoreStockSQL, id); err != nil {
			return fmt.Errorf("restoring stock: %w", err)
		}

		s, err := getSale(ctx, tx, id)
		if err != nil {
			return err
		}
		cancelled = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancelling sale %q: %w", id, err)
	}
	return cancelled, nil
}

func attachItems(ctx context.Context, q queryer, sales []sale.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
		index[s.ID] = i
	}

	rows, err := q.Query(ctx, getSaleItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("getting sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			saleID string
			it     sale.Item
		)
		if err := rows.Scan(
			&saleID, &it.ProductID, &it.Name, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.LineTotal,
		); err != nil {
			return fmt.Errorf("scanning sale item: %w", err)
		}
		i := index[saleID]
		sales[i].Items = append(sales[i].Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("getting sale items: %w", err)
	}
	return nil
}

func scanSale(row pgx.CollectableRow) (sale.Sale, error) {
	var (
		s      sale.Sale
		method string
		status string
	)
	err := row.Scan(
		&s.ID, &s.Number, &s.Subtotal, &s.Tax, &s.Total, &method, &s.CustomerID, &s.CashierID,
		&status, &s.CancelReason, &s.CreatedAt, &s.CancelledAt,
	)
	s.PaymentMethod = sale.PaymentMethod(method)
	s.Status = sale.Status(status)
	return s, err
}
