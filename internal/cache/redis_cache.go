package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"provisionstore/backend/internal/domain"
)

type RedisProductCache struct {
	client *redis.Client
}

func NewRedisProductCache(addr string, password string, db int) *RedisProductCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisProductCache{client: client}
}

func (c *RedisProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisProductCache) Close() error {
	return c.client.Close()
}

func (c *RedisProductCache) Get(ctx context.Context, barcode string) (*domain.Product, bool, error) {
	val, err := c.client.Get(ctx, BarcodeKey(barcode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var product domain.Product
	if err := json.Unmarshal(val, &product); err != nil {
		return nil, false, err
	}
	return &product, true, nil
}

func (c *RedisProductCache) Set(ctx context.Context, barcode string, value *domain.Product, ttl time.Duration) error {
	if value == nil || barcode == "" {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, BarcodeKey(barcode), payload, ttl).Err()
}

func (c *RedisProductCache) Delete(ctx context.Context, barcodes ...string) error {
	keys := make([]string, 0, len(barcodes))
	for _, barcode := range barcodes {
		if barcode != "" {
			keys = append(keys, BarcodeKey(barcode))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
