package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisionstore/backend/internal/domain"
)

func TestNoopProductCacheAlwaysMisses(t *testing.T) {
	var c ProductCache = NoopProductCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "123", &domain.Product{ID: "p1"}, time.Minute))
	got, ok, err := c.Get(ctx, "123")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Delete(ctx, "123"))
}

func TestRedisProductCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("POS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set POS_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	c := NewRedisProductCache(addr, "", 0)
	t.Cleanup(func() {
		_ = c.Delete(ctx, "it-barcode-1")
		_ = c.Close()
	})
	require.NoError(t, c.Ping(ctx))

	product := &domain.Product{ID: "prod-it", Name: "Malt 33cl", UnitPrice: decimal.RequireFromString("350.00"), Quantity: 9, Barcode: "it-barcode-1"}
	require.NoError(t, c.Set(ctx, product.Barcode, product, time.Minute))

	got, ok, err := c.Get(ctx, product.Barcode)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "prod-it", got.ID)
	assert.True(t, got.UnitPrice.Equal(product.UnitPrice))

	require.NoError(t, c.Delete(ctx, product.Barcode))
	_, ok, err = c.Get(ctx, product.Barcode)
	require.NoError(t, err)
	assert.False(t, ok)
}
