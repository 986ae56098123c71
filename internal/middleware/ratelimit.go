package middleware

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/util"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Name labels metrics and namespaces Redis keys
	Name string
	// Requests per window
	Limit int
	// Window duration
	Window time.Duration
	// KeyFunc identifies the client; defaults to the client IP
	KeyFunc func(c *gin.Context) string
}

// DefaultRateLimitConfig returns the global limit
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:    "global",
		Limit:   100,
		Window:  time.Minute,
		KeyFunc: clientIPKey,
	}
}

// AuthRateLimitConfig returns stricter limits for auth endpoints
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:    "auth",
		Limit:   10,
		Window:  time.Minute,
		KeyFunc: clientIPKey,
	}
}

// SyncRateLimitConfig limits outbox replays; each request can carry up to 100 ops
func SyncRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:    "sync",
		Limit:   30,
		Window:  time.Minute,
		KeyFunc: clientIPKey,
	}
}

func clientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

func (cfg RateLimitConfig) withDefaults() RateLimitConfig {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIPKey
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return cfg
}

// TokenBucket for rate limiting
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow takes a token if one is available
func (tb *TokenBucket) Allow() bool {
	return tb.allowAt(time.Now())
}

func (tb *TokenBucket) allowAt(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens = min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}
}

// Remaining reports the whole tokens left
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return int(tb.tokens)
}

// GetRetryAfter returns seconds to wait before next request
func (tb *TokenBucket) GetRetryAfter() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.tokens < 1 {
		timeToToken := (1 - tb.tokens) / tb.refillRate
		return int(timeToToken) + 1
	}
	return 0
}

// idle reports whether the bucket has refilled completely by now
func (tb *TokenBucket) idle(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(now)
	return tb.tokens >= tb.maxTokens
}

// RateLimiter keeps one token bucket per client
type RateLimiter struct {
	buckets map[string]*TokenBucket
	config  RateLimitConfig
	mu      sync.Mutex
	cleanup *time.Ticker
}

// NewRateLimiter creates a new in-memory rate limiting middleware
func NewRateLimiter(config RateLimitConfig) gin.HandlerFunc {
	config = config.withDefaults()
	rl := &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		cleanup: time.NewTicker(config.Window),
	}

	go rl.cleanupRoutine()

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		bucket := rl.bucket(key)
		if !bucket.Allow() {
			rejectRateLimited(c, config, bucket.GetRetryAfter())
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(bucket.Remaining()))
		c.Next()
	}
}

func (rl *RateLimiter) bucket(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[key]
	if !exists {
		refillRate := float64(rl.config.Limit) / rl.config.Window.Seconds()
		bucket = NewTokenBucket(float64(rl.config.Limit), refillRate)
		rl.buckets[key] = bucket
	}
	return bucket
}

// Allow checks if a client is allowed to make a request
func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucket(key).Allow()
}

// cleanupRoutine drops buckets that have refilled, so idle clients cost nothing
func (rl *RateLimiter) cleanupRoutine() {
	for range rl.cleanup.C {
		rl.prune(time.Now())
	}
}

func (rl *RateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if b.idle(now) {
			delete(rl.buckets, key)
		}
	}
}

func rejectRateLimited(c *gin.Context, config RateLimitConfig, retryAfter int) {
	metrics.RecordRateLimitRejection(config.Name, c.Request.Method)
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
	c.Header("X-RateLimit-Remaining", "0")
	util.RespondWithAPIError(c, errors.RateLimited(
		fmt.Sprintf("rate limit exceeded, retry in %ds", retryAfter),
	))
}

// RateLimit returns a middleware with default configuration
func RateLimit() gin.HandlerFunc {
	return NewRateLimiter(DefaultRateLimitConfig())
}

