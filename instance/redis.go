package instance

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis interface {
	Subscribe(ctx context.Context, ch chan string, subscribeTo ...string)
	Ping(ctx context.Context) error
	Publish(ctx context.Context, channel string, content string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	SetEX(ctx context.Context, key string, value string, ttl time.Duration) error
	Set(ctx context.Context, key string, value string) error
	HSet(ctx context.Context, key string, field string, value string) error
	HGet(ctx context.Context, key string, field string) (string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	Close() error
	RawClient() *redis.Client
}
