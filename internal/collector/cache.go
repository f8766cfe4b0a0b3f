package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache is the key/value store behind CachedFetcher.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache implements Cache on a Redis server.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects lazily; use Ping to check the server.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedFetcher serves quotes from Cache while they are fresher than TTL.
// A failing cache degrades to a direct fetch.
type CachedFetcher struct {
	Fetcher Fetcher
	Cache   Cache
	TTL     time.Duration
	Prefix  string
}

// NewCachedFetcher wraps f with a cache.
func NewCachedFetcher(f Fetcher, c Cache, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{Fetcher: f, Cache: c, TTL: ttl, Prefix: "portfolio:quote:"}
}

func (c *CachedFetcher) Name() string { return c.Fetcher.Name() + "+cache" }

func (c *CachedFetcher) FetchCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return c.decimal(ctx, "price:"+strings.ToUpper(symbol), func() (decimal.Decimal, error) {
		return c.Fetcher.FetchCurrentPrice(ctx, symbol)
	})
}

func (c *CachedFetcher) FetchFXRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := fmt.Sprintf("fx:%s:%s", strings.ToUpper(from), strings.ToUpper(to))
	return c.decimal(ctx, key, func() (decimal.Decimal, error) {
		return c.Fetcher.FetchFXRate(ctx, from, to)
	})
}

func (c *CachedFetcher) FetchTargets(ctx context.Context, symbol string) (Targets, error) {
	key := c.Prefix + "targets:" + strings.ToUpper(symbol)
	if v, ok := c.lookup(ctx, key); ok {
		var t Targets
		if err := json.Unmarshal([]byte(v), &t); err == nil {
			return t, nil
		}
	}
	t, err := c.Fetcher.FetchTargets(ctx, symbol)
	if err != nil {
		return Targets{}, err
	}
	if data, err := json.Marshal(t); err == nil {
		c.store(ctx, key, string(data))
	}
	return t, nil
}

func (c *CachedFetcher) decimal(ctx context.Context, key string, fetch func() (decimal.Decimal, error)) (decimal.Decimal, error) {
	key = c.Prefix + key
	if v, ok := c.lookup(ctx, key); ok {
		if d, err := decimal.NewFromString(v); err == nil {
			return d, nil
		}
	}
	d, err := fetch()
	if err != nil {
		return decimal.Zero, err
	}
	c.store(ctx, key, d.String())
	return d, nil
}

func (c *CachedFetcher) lookup(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.Cache.Get(ctx, key)
	if err != nil {
		log.Printf("[WARN] quote cache get %s: %v", key, err)
		return "", false
	}
	return v, ok
}

func (c *CachedFetcher) store(ctx context.Context, key, value string) {
	if err := c.Cache.Set(ctx, key, value, c.TTL); err != nil {
		log.Printf("[WARN] quote cache set %s: %v", key, err)
	}
}
