package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/graxinc/errutil"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	c *redis.Client
	l *slog.Logger
}

func NewCache(url string, l *slog.Logger) (*Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errutil.With(err)
	}
	c := redis.NewClient(opt)

	return &Cache{c, l}, nil
}

func (c *Cache) Close() error {
	return c.c.Close()
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, errutil.With(err)
	}

	return data, nil
}

func (c *Cache) set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.c.Set(ctx, key, data, ttl).Err(); err != nil {
		return errutil.With(err)
	}

	return nil
}

func (c *Cache) del(ctx context.Context, keys ...string) error {
	if err := c.c.Del(ctx, keys...).Err(); err != nil {
		return errutil.With(err)
	}

	return nil
}
