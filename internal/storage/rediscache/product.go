// Package rediscache puts a redis read-through cache in front of the
// product repository.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/boutique-pos/internal/domain/product"
)

const (
	idPrefix      = "pos:product:id:"
	barcodePrefix = "pos:product:barcode:"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository caches single-product lookups of the wrapped repository.
// Writes go straight to the wrapped repository and invalidate the affected
// keys. Redis failures are logged and never fail a call.
type ProductRepository struct {
	product.Repository

	client redis.UniversalClient
	ttl    time.Duration
}

// NewProductRepository wraps next with a cache stored in client.
func NewProductRepository(next product.Repository, client redis.UniversalClient, ttl time.Duration) *ProductRepository {
	return &ProductRepository{Repository: next, client: client, ttl: ttl}
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.cached(ctx, idPrefix+id, func() (*product.Product, error) {
		return r.Repository.GetByID(ctx, id)
	})
}

func (r *ProductRepository) GetByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	return r.cached(ctx, barcodePrefix+barcode, func() (*product.Product, error) {
		return r.Repository.GetByBarcode(ctx, barcode)
	})
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	old := r.previous(ctx, p.ID)
	if err := r.Repository.Update(ctx, p); err != nil {
		return err
	}
	keys := []string{idPrefix + p.ID, barcodePrefix + p.Barcode}
	if old != nil && old.Barcode != p.Barcode {
		keys = append(keys, barcodePrefix+old.Barcode)
	}
	r.invalidate(ctx, keys...)
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	old := r.previous(ctx, id)
	if err := r.Repository.Delete(ctx, id); err != nil {
		return err
	}
	keys := []string{idPrefix + id}
	if old != nil {
		keys = append(keys, barcodePrefix+old.Barcode)
	}
	r.invalidate(ctx, keys...)
	return nil
}

// previous loads the stored product before a write so that its old barcode
// key can be evicted. A missing product is left for the write to report.
func (r *ProductRepository) previous(ctx context.Context, id string) *product.Product {
	p, err := r.Repository.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, product.ErrNotFound) {
			zctx.From(ctx).Warn("Loading product before invalidation failed",
				zap.String("product_id", id),
				zap.Error(err),
			)
		}
		return nil
	}
	return p
}

// Invalidate drops the cached entries of the given products.
func (r *ProductRepository) Invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, idPrefix+id)
	}
	ps, err := r.Repository.GetByIDs(ctx, ids)
	if err != nil {
		zctx.From(ctx).Warn("Resolving barcodes for invalidation failed", zap.Error(err))
	}
	for _, p := range ps {
		keys = append(keys, barcodePrefix+p.Barcode)
	}
	r.invalidate(ctx, keys...)
}

func (r *ProductRepository) cached(ctx context.Context, key string, load func() (*product.Product, error)) (*product.Product, error) {
	lg := zctx.From(ctx)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p product.Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		lg.Warn("Dropping undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
	}

	p, err := load()
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(p)
	if err != nil {
		return p, nil
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		lg.Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
	}
	return p, nil
}

func (r *ProductRepository) invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache invalidation failed",
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
}
