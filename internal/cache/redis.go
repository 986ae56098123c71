// Package cache wraps Redis for short-lived response caching and counters.
package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/metrics"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when the key does not exist
var ErrMiss = stderrors.New("cache miss")

// Store is the subset of cache operations the services depend on
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisClient wraps the redis.Client with centralized connection pooling
type RedisClient struct {
	client *redis.Client
}

var _ Store = (*RedisClient)(nil)

var globalRedis *RedisClient

// NewRedisClient connects to Redis and pings it
func NewRedisClient(host string, port string, password string) (*RedisClient, error) {
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.ErrorWithFields("Failed to connect to Redis", err)
		_ = client.Close()
		return nil, err
	}

	rc := &RedisClient{client: client}
	globalRedis = rc

	logger.Log.Info("Redis client connected",
		zap.String("address", addr),
	)
	return rc, nil
}

// GetRedisClient returns the global Redis client, nil when Redis is not configured
func GetRedisClient() *RedisClient {
	return globalRedis
}

// Close closes the Redis connection gracefully
func (rc *RedisClient) Close() error {
	if rc == nil || rc.client == nil {
		return nil
	}
	return rc.client.Close()
}

// Get retrieves a value; a missing key yields ErrMiss
func (rc *RedisClient) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := rc.client.Get(ctx, key).Result()
	if stderrors.Is(err, redis.Nil) {
		observe("get", key, start, nil)
		return "", ErrMiss
	}
	observe("get", key, start, err)
	return val, err
}

// SetEx stores a value with expiration
func (rc *RedisClient) SetEx(ctx context.Context, key string, value string, ttl time.Duration) error {
	start := time.Now()
	err := rc.client.Set(ctx, key, value, ttl).Err()
	observe("set", key, start, err)
	return err
}

// Del deletes one or more keys
func (rc *RedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := rc.client.Del(ctx, keys...).Err()
	observe("del", keys[0], start, err)
	return err
}

// Incr increments a counter, creating it at 1
func (rc *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := rc.client.Incr(ctx, key).Result()
	observe("incr", key, start, err)
	return n, err
}

// Expire sets an expiration timeout on a key
func (rc *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	err := rc.client.Expire(ctx, key, ttl).Err()
	observe("expire", key, start, err)
	return err
}

// TTL returns the time-to-live for a key
func (rc *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rc.client.TTL(ctx, key).Result()
}

// Ping tests the Redis connection
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// PoolStats reports open connections for the metrics gauge
func (rc *RedisClient) PoolStats() *redis.PoolStats {
	return rc.client.PoolStats()
}

func observe(op, key string, start time.Time, err error) {
	metrics.RecordRedisOperation(op, keyPattern(key), time.Since(start), err)
}

// keyPattern is the key's first segment, e.g. "dashboard" for "dashboard:u1:2026-03-11"
func keyPattern(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
