package cache

import (
	"context"
	"time"

	"kiosco/backend/internal/domain"
)

// BarcodeCache stores external barcode lookups, including misses.
type BarcodeCache interface {
	Get(ctx context.Context, barcode string) (*domain.BarcodeLookup, bool, error)
	Set(ctx context.Context, barcode string, value *domain.BarcodeLookup, ttl time.Duration) error
}

type NoopBarcodeCache struct{}

func (NoopBarcodeCache) Get(_ context.Context, _ string) (*domain.BarcodeLookup, bool, error) {
	return nil, false, nil
}

func (NoopBarcodeCache) Set(_ context.Context, _ string, _ *domain.BarcodeLookup, _ time.Duration) error {
	return nil
}
