package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/ledgercast/ledgercast/internal/models"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepAbove = 10000
)

// RateLimitConfig configures the token bucket applied to each client
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per API key, or per IP address when
// auth is disabled
type rateLimiter struct {
	cfg     RateLimitConfig
	clients map[string]*clientLimiter
	now     func() time.Time
	mu      sync.Mutex
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (r *rateLimiter) limiter(client string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if cl, ok := r.clients[client]; ok {
		cl.lastSeen = now
		return cl.limiter
	}

	if len(r.clients) >= limiterSweepAbove {
		for key, cl := range r.clients {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(r.clients, key)
			}
		}
	}

	cl := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst),
		lastSeen: now,
	}
	r.clients[client] = cl
	return cl.limiter
}

// RateLimit rejects requests beyond the configured rate with 429. It must run
// after APIKeyAuth to key buckets by API key.
func RateLimit(cfg RateLimitConfig) fiber.Handler {
	if !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	limits := newRateLimiter(cfg)
	retryAfter := strconv.Itoa(int(max(1, 1/cfg.RequestsPerSecond)))

	return func(c *fiber.Ctx) error {
		client := APIKeyFromContext(c)
		if client == "" {
			client = c.IP()
		}

		if !limits.limiter(client).Allow() {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: models.ErrorDetail{
					Code:    "RATE_LIMITED",
					Message: "Too many requests",
				},
			})
		}
		return c.Next()
	}
}
