package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kiosco/backend/internal/domain"
)

const barcodeKeyPrefix = "barcode:"

type RedisBarcodeCache struct {
	client *redis.Client
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisBarcodeCache(client *redis.Client) *RedisBarcodeCache {
	return &RedisBarcodeCache{client: client}
}

func (c *RedisBarcodeCache) Get(ctx context.Context, barcode string) (*domain.BarcodeLookup, bool, error) {
	val, err := c.client.Get(ctx, barcodeKeyPrefix+barcode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var lookup domain.BarcodeLookup
	if err := json.Unmarshal([]byte(val), &lookup); err != nil {
		return nil, false, err
	}
	return &lookup, true, nil
}

func (c *RedisBarcodeCache) Set(ctx context.Context, barcode string, value *domain.BarcodeLookup, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, barcodeKeyPrefix+barcode, payload, ttl).Err()
}
