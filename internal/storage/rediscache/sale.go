package rediscache

import (
	"context"
	"time"

	"github.com/xenking/boutique-pos/internal/domain/sale"
)

var _ sale.Repository = (*SaleRepository)(nil)

// SaleRepository invalidates cached products whose stock a sale changed.
type SaleRepository struct {
	sale.Repository

	products *ProductRepository
}

// NewSaleRepository wraps next so that recorded and cancelled sales evict
// their products from the cache.
func NewSaleRepository(next sale.Repository, products *ProductRepository) *SaleRepository {
	return &SaleRepository{Repository: next, products: products}
}

func (r *SaleRepository) Create(ctx context.Context, s *sale.Sale) error {
	if err := r.Repository.Create(ctx, s); err != nil {
		return err
	}
	r.products.Invalidate(ctx, itemIDs(s.Items)...)
	return nil
}

func (r *SaleRepository) Cancel(ctx context.Context, id, reason string, at time.Time) (*sale.Sale, error) {
	s, err := r.Repository.Cancel(ctx, id, reason, at)
	if err != nil {
		return nil, err
	}
	r.products.Invalidate(ctx, itemIDs(s.Items)...)
	return s, nil
}

func itemIDs(items []sale.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	return ids
}
