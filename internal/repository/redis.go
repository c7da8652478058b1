package repository

import (
	"context"
	"fmt"
	"time"

	"leadsync/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisGuardRepository keeps dedup and throttle windows in redis so they
// survive restarts and are shared across replicas.
type RedisGuardRepository struct {
	client *redis.Client
}

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisGuardRepository(client *redis.Client) *RedisGuardRepository {
	return &RedisGuardRepository{client: client}
}

// MarkSeen records the key for the window and reports whether this was its
// first occurrence inside the window.
func (r *RedisGuardRepository) MarkSeen(ctx context.Context, key string, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	first, err := r.client.SetNX(ctx, "guard:seen:"+key, 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("guard setnx: %w", err)
	}
	return first, nil
}

// CountHit bumps the fixed-window counter for the key and returns the count.
func (r *RedisGuardRepository) CountHit(ctx context.Context, key string, window time.Duration) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	fullKey := "guard:hits:" + key
	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("guard incr: %w", err)
	}
	if count == 1 {
		r.client.Expire(ctx, fullKey, window)
	}
	return count, nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
