package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces this cache's keys so Clear and Len only touch
	// entries this cache wrote.
	KeyPrefix string
	CacheTTL  time.Duration
}

// RedisResourceCache is a generic ResourceCache backed by Redis. It is a
// deployment option for web-admin instances that want to share fetch results
// across processes; the default in-memory cache remains the right choice for
// a single desktop client.
type RedisResourceCache[K comparable, V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	keyPrefix   string
	ttl         time.Duration
	release     ReleaseFunc[V]
}

// NewRedisResourceCache creates and connects a new generic RedisResourceCache.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisResourceCache[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
	release ReleaseFunc[V],
) (*RedisResourceCache[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "resource:"
	}

	return &RedisResourceCache[K, V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisResourceCache").Logger(),
		keyPrefix:   prefix,
		ttl:         cfg.CacheTTL,
		release:     release,
	}, nil
}

// Get retrieves and unmarshals a value from Redis. A redis.Nil reply is
// reported as ErrNotFound; any other error is a genuine problem.
func (c *RedisResourceCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := c.redisKey(key)
	cachedData, err := c.redisClient.Get(ctx, stringKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
		}
		c.logger.Error().Err(err).Str("key", stringKey).Msg("Unexpected Redis error during fetch.")
		return zero, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}

	var value V
	if err := json.Unmarshal([]byte(cachedData), &value); err != nil {
		c.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal cached data.")
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	c.logger.Debug().Str("key", stringKey).Msg("Redis cache hit.")
	return value, nil
}

// Put marshals the value to JSON and stores it in Redis with the configured TTL.
func (c *RedisResourceCache[K, V]) Put(ctx context.Context, key K, value V) error {
	stringKey := c.redisKey(key)
	jsonData, err := json.Marshal(value)
	if err != nil {
		c.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to marshal data for caching.")
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := c.redisClient.Set(ctx, stringKey, jsonData, c.ttl).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to set data in Redis cache.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// Delete removes a key from Redis, releasing the stored value first.
func (c *RedisResourceCache[K, V]) Delete(ctx context.Context, key K) error {
	stringKey := c.redisKey(key)
	if c.release != nil {
		if value, err := c.Get(ctx, key); err == nil {
			c.release(value)
		}
	}
	if err := c.redisClient.Del(ctx, stringKey).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", stringKey, err)
	}
	return nil
}

// Clear scans this cache's key namespace, releases every stored value and
// deletes the keys.
func (c *RedisResourceCache[K, V]) Clear(ctx context.Context) error {
	keys, err := c.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if c.release != nil {
		for _, stringKey := range keys {
			cachedData, getErr := c.redisClient.Get(ctx, stringKey).Result()
			if getErr != nil {
				continue
			}
			var value V
			if unmarshalErr := json.Unmarshal([]byte(cachedData), &value); unmarshalErr != nil {
				c.logger.Warn().Err(unmarshalErr).Str("key", stringKey).Msg("Skipping release of unreadable cache entry.")
				continue
			}
			c.release(value)
		}
	}

	if err := c.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed during clear: %w", err)
	}
	c.logger.Info().Int("entry_count", len(keys)).Msg("Cleared Redis resource cache.")
	return nil
}

// Len reports the number of entries in this cache's key namespace.
func (c *RedisResourceCache[K, V]) Len(ctx context.Context) (int, error) {
	keys, err := c.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close closes the Redis client connection.
func (c *RedisResourceCache[K, V]) Close() error {
	if c.redisClient != nil {
		c.logger.Info().Msg("Closing Redis client connection...")
		return c.redisClient.Close()
	}
	return nil
}

func (c *RedisResourceCache[K, V]) redisKey(key K) string {
	return fmt.Sprintf("%s%v", c.keyPrefix, key)
}

func (c *RedisResourceCache[K, V]) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.redisClient.Scan(ctx, 0, c.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}
