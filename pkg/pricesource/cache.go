package pricesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

// Cache stores normalized search results by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]model.FlightPrice, bool, error)
	Set(ctx context.Context, key string, prices []model.FlightPrice, ttl time.Duration) error
}

// CachedSource serves repeated queries from a cache for ttl. Placeholder
// results are never cached.
type CachedSource struct {
	next   Source
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource wraps next with cache.
func NewCachedSource(next Source, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedSource {
	return &CachedSource{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedSource) Name() string { return c.next.Name() }

func (c *CachedSource) SearchDeals(ctx context.Context, q Query) (*SearchResult, error) {
	key := "fares:" + c.next.Name() + ":" + q.Key()

	prices, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("price cache read failed", "key", key, "error", err)
	} else if ok {
		c.logger.Debug("price cache hit", "key", key)
		return &SearchResult{Prices: prices}, nil
	}

	result, err := c.next.SearchDeals(ctx, q)
	if err != nil {
		return nil, err
	}
	if result.Placeholder || len(result.Prices) == 0 {
		return result, nil
	}

	if err := c.cache.Set(ctx, key, result.Prices, c.ttl); err != nil {
		c.logger.Warn("price cache write failed", "key", key, "error", err)
	}
	return result, nil
}

// RedisCache stores search results as JSON strings in Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis at addr and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]model.FlightPrice, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}

	var prices []model.FlightPrice
	if err := json.Unmarshal(raw, &prices); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return prices, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, prices []model.FlightPrice, ttl time.Duration) error {
	raw, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
