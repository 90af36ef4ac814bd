package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Guard — короткоживущий замок на ключ (SET NX + TTL). Схлопывает параллельные
// повторы одного вебхука; долговременный флаг хранится в БД.
type Guard struct {
	c *redis.Client
}

func NewGuard(addr string) *Guard {
	return &Guard{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (g *Guard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.c.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx")
	}
	return ok, nil
}

func (g *Guard) Release(ctx context.Context, key string) error {
	if err := g.c.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(err, "redis del guard")
	}
	return nil
}

func (g *Guard) Close() error {
	return g.c.Close()
}
