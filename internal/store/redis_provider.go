package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisProvider keeps documents as plain Redis string values.
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider builds a Redis-backed provider.
func NewRedisProvider(addr, password string) *RedisProvider {
	return &RedisProvider{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

func (p *RedisProvider) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := p.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (p *RedisProvider) Set(ctx context.Context, key, value string) error {
	return p.client.Set(ctx, key, value, 0).Err()
}

func (p *RedisProvider) Remove(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (p *RedisProvider) Close() error {
	return p.client.Close()
}
