package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/moment-tracker/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CacheService stores JSON encoded responses in Redis with a TTL
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyReport is for full portfolio reports
	CacheKeyReport CacheKeyType = "report"
	// CacheKeyMoments is for normalized moment lists
	CacheKeyMoments CacheKeyType = "moments"
	// CacheKeyTransactions is for account transaction histories
	CacheKeyTransactions CacheKeyType = "txs"
	// CacheKeySnapshot is for resolved market snapshots
	CacheKeySnapshot CacheKeyType = "snapshot"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, param := range params {
		parts = append(parts, strings.ToLower(param))
	}
	return strings.Join(parts, ":")
}

// TTL returns the default entry lifetime
func (c *CacheService) TTL() time.Duration {
	return c.ttl
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, ttl); err != nil {
		return apperrors.NewCacheError("set", err)
	}
	return nil
}

// Get retrieves a value from cache and decodes it into dest. found is false
// on a cache miss.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, apperrors.NewCacheError("get", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidateWallet removes every cached entry of a wallet
func (c *CacheService) InvalidateWallet(ctx context.Context, wallet string) error {
	wallet = strings.ToLower(wallet)
	var keys []string
	for _, keyType := range []CacheKeyType{CacheKeyReport, CacheKeyMoments, CacheKeyTransactions} {
		matched, err := c.redis.Scan(ctx, fmt.Sprintf("%s:%s*", keyType, wallet))
		if err != nil {
			return fmt.Errorf("failed to find keys for wallet: %w", err)
		}
		keys = append(keys, matched...)
	}
	return c.Invalidate(ctx, keys...)
}
