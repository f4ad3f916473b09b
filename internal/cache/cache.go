package cache

import (
	"context"
	"time"

	"provisionstore/backend/internal/domain"
)

// ProductCache holds barcode scan lookups. Entries are dropped whenever the
// product's stock, price or barcode changes.
type ProductCache interface {
	Get(ctx context.Context, barcode string) (*domain.Product, bool, error)
	Set(ctx context.Context, barcode string, value *domain.Product, ttl time.Duration) error
	Delete(ctx context.Context, barcodes ...string) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ string, _ *domain.Product, _ time.Duration) error {
	return nil
}

func (NoopProductCache) Delete(_ context.Context, _ ...string) error {
	return nil
}

func BarcodeKey(barcode string) string {
	return "pos:product:barcode:" + barcode
}
