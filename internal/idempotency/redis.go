package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pending marks a reserved key whose order is not known yet.
const pending = "-"

type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: "storefront:idempotency:", ttl: ttl}
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

func (r *RedisStore) Reserve(ctx context.Context, key string) (string, bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), pending, r.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return r.Reserve(ctx, key)
	}
	if err != nil {
		return "", false, fmt.Errorf("read idempotency key: %w", err)
	}
	if v == pending {
		return "", false, nil
	}
	return v, false, nil
}

func (r *RedisStore) Bind(ctx context.Context, key, orderID string) error {
	return r.client.Set(ctx, r.key(key), orderID, r.ttl).Err()
}

func (r *RedisStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
