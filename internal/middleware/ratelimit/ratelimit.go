// Package ratelimit throttles clients with a per-key token bucket. Ingest
// endpoints cost more tokens than reads because each run fans out into web
// scraping and LLM calls.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

type limiter struct {
	mu         sync.RWMutex
	buckets    map[string]*bucket
	maxTokens  int
	refillRate time.Duration
	ingestCost int
	logger     *zap.Logger
}

type Config struct {
	MaxRequestsPerMinute int
	// IngestCost is how many tokens one pipeline-triggering request burns.
	IngestCost int
	Logger     *zap.Logger
}

// Middleware returns a fiber handler enforcing the configured budget per
// client IP (or X-User-ID when present).
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxRequestsPerMinute == 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.IngestCost == 0 {
		cfg.IngestCost = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &limiter{
		buckets:    make(map[string]*bucket),
		maxTokens:  cfg.MaxRequestsPerMinute,
		refillRate: time.Minute / time.Duration(cfg.MaxRequestsPerMinute),
		ingestCost: cfg.IngestCost,
		logger:     cfg.Logger,
	}

	go l.evictIdle()

	return func(c *fiber.Ctx) error {
		key := c.IP()
		if userID := c.Get("X-User-ID"); userID != "" {
			key = userID
		}

		cost := 1
		if c.Method() == "POST" && strings.Contains(c.Path(), "/api/v1/ingest") {
			cost = l.ingestCost
		}

		if !l.allow(key, cost) {
			l.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Path()),
				zap.Int("cost", cost),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (l *limiter) allow(key string, cost int) bool {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		b, exists = l.buckets[key]
		if !exists {
			b = &bucket{
				tokens:     l.maxTokens,
				lastRefill: time.Now(),
			}
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	refill := int(now.Sub(b.lastRefill) / l.refillRate)
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.maxTokens {
			b.tokens = l.maxTokens
		}
		b.lastRefill = now
	}

	if b.tokens >= cost {
		b.tokens -= cost
		return true
	}

	return false
}

func (l *limiter) evictIdle() {
	for range time.Tick(5 * time.Minute) {
		l.mu.Lock()
		now := time.Now()
		for key, b := range l.buckets {
			b.mu.Lock()
			idle := now.Sub(b.lastRefill) > 10*time.Minute
			b.mu.Unlock()
			if idle {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}
