package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AnTengye/dealflow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Counter counts hits for a key inside a fixed window
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// MemoryCounter keeps per-process counters
type MemoryCounter struct {
	mu        sync.Mutex
	counts    map[string]int64
	lastReset time.Time
	now       func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		counts:    make(map[string]int64),
		lastReset: time.Now(),
		now:       time.Now,
	}
}

func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Reset if window has passed
	if m.now().Sub(m.lastReset) > window {
		m.counts = make(map[string]int64)
		m.lastReset = m.now()
	}

	m.counts[key]++
	return m.counts[key], nil
}

// RedisCounter shares counters between replicas
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "dealflow:ratelimit:"}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	bucket := time.Now().UnixNano() / int64(window)
	redisKey := r.prefix + key + ":" + strconv.FormatInt(bucket, 10)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.Expire(ctx, redisKey, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// ConnectRedis initializes a Redis client from URL or host:port input
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RateLimit middleware limits requests per IP with an in-memory counter
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	return RateLimitWith(NewMemoryCounter(), rate, window)
}

// RateLimitWith limits requests per IP using counter. Counter failures let
// the request through.
func RateLimitWith(counter Counter, rate int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		clientIP := c.ClientIP()

		count, err := counter.Incr(ctx, clientIP, window)
		if err != nil {
			logger.Warn(ctx, "rate limit counter unavailable", "client_ip", clientIP, "error", err)
			c.Next()
			return
		}

		if count > int64(rate) {
			logger.Warn(ctx, "rate limit exceeded", "client_ip", clientIP)

			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
