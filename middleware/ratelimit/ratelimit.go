package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-portal-auth"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

// TextCodeRateLimited is reported when a client exceeds its budget
const TextCodeRateLimited = "RATE_LIMITED"

// ErrRateLimited is returned to clients that exceed the request budget
var ErrRateLimited = goerrors.New("too many requests, please slow down", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited).
	WithCode(http.StatusTooManyRequests)

type Config struct {
	// Limit is the sustained number of requests per second
	Limit rate.Limit
	Burst int
	// TTL evicts limiters for keys not seen for this long
	TTL time.Duration
	// KeyFunc picks the bucket for a request, defaults to the client IP
	KeyFunc      func(c *fiber.Ctx) string
	Filter       func(c *fiber.Ctx) bool
	ErrorHandler fiber.ErrorHandler
	Now          func() time.Time
}

// ConfigDefault allows ten login attempts per minute per client
var ConfigDefault = Config{
	Limit: rate.Every(6 * time.Second),
	Burst: 5,
	TTL:   5 * time.Minute,
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per key
type Limiter struct {
	cfg     Config
	buckets *xsync.MapOf[string, *bucket]
}

func NewLimiter(config ...Config) *Limiter {
	cfg := configDefault(config...)
	return &Limiter{
		cfg:     cfg,
		buckets: xsync.NewMapOf[string, *bucket](),
	}
}

// New creates a fiber handler backed by a fresh Limiter
func New(config ...Config) fiber.Handler {
	return NewLimiter(config...).Handler()
}

func (l *Limiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l.cfg.Filter != nil && l.cfg.Filter(c) {
			return c.Next()
		}

		if !l.Allow(l.cfg.KeyFunc(c)) {
			retry := int(time.Duration(float64(time.Second) / float64(l.cfg.Limit)).Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return l.cfg.ErrorHandler(c, ErrRateLimited.Clone())
		}

		return c.Next()
	}
}

// Allow consumes one token from the bucket for key. A bucket idle for
// longer than TTL starts over.
func (l *Limiter) Allow(key string) bool {
	now := l.cfg.Now()

	b, _ := l.buckets.Compute(key, func(old *bucket, loaded bool) (*bucket, bool) {
		if !loaded || now.Sub(old.lastSeen) > l.cfg.TTL {
			return &bucket{limiter: rate.NewLimiter(l.cfg.Limit, l.cfg.Burst), lastSeen: now}, false
		}
		old.lastSeen = now
		return old, false
	})

	return b.limiter.AllowN(now, 1)
}

// Len reports the number of tracked keys
func (l *Limiter) Len() int {
	return l.buckets.Size()
}

// Sweep drops buckets idle for longer than TTL and returns how many were dropped
func (l *Limiter) Sweep() int {
	now := l.cfg.Now()
	removed := 0

	l.buckets.Range(func(key string, b *bucket) bool {
		if now.Sub(b.lastSeen) <= l.cfg.TTL {
			return true
		}
		l.buckets.Compute(key, func(old *bucket, loaded bool) (*bucket, bool) {
			drop := loaded && now.Sub(old.lastSeen) > l.cfg.TTL
			if drop {
				removed++
			}
			return old, !loaded || drop
		})
		return true
	})

	return removed
}

// Run sweeps idle buckets every interval until ctx is done
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.cfg.TTL
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		config = []Config{{}}
	}

	cfg := config[0]

	if cfg.Limit <= 0 {
		cfg.Limit = ConfigDefault.Limit
	}

	if cfg.Burst <= 0 {
		cfg.Burst = ConfigDefault.Burst
	}

	if cfg.TTL <= 0 {
		cfg.TTL = ConfigDefault.TTL
	}

	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = auth.FiberErrorHandler
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return cfg
}
