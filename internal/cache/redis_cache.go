package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisJobLock struct {
	client *redis.Client
	prefix string
}

func NewRedisJobLock(addr string, password string, db int) *RedisJobLock {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisJobLock{client: client, prefix: "cafeops:job:"}
}

func (l *RedisJobLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisJobLock) Close() error {
	return l.client.Close()
}

// Acquire sets the key only if it is absent. The key expires after ttl and
// is never released early, so a slot cannot run twice within ttl.
func (l *RedisJobLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}
