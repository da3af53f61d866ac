// Package abuse throttles the public reservation endpoint per IP and per
// phone number, independent of any tenant-level limits.
package abuse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danieloza/salonos/pkg/logging"
)

// ErrRateLimited is returned when a public submission exceeds a window limit.
var ErrRateLimited = errors.New("too many reservation requests")

// Dimension names the limit a submission tripped.
const (
	DimensionIP    = "ip"
	DimensionPhone = "phone"
)

// Result carries the outcome of a guard check.
type Result struct {
	Allowed      bool
	Dimension    string
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
}

// Config contains the fixed-window limits.
type Config struct {
	MaxPerIP    int
	IPWindow    time.Duration
	MaxPerPhone int
	PhoneWindow time.Duration
}

// DefaultConfig returns the default public submission limits.
func DefaultConfig() Config {
	return Config{
		MaxPerIP:    10,
		IPWindow:    time.Hour,
		MaxPerPhone: 5,
		PhoneWindow: time.Hour,
	}
}

// Guard counts public submissions in Redis fixed windows. When Redis is
// unreachable the guard fails open so an outage never blocks bookings.
type Guard struct {
	redis  *redis.Client
	logger *logging.Logger
	config Config
}

// NewGuard creates a new abuse guard.
func NewGuard(redisClient *redis.Client, config Config, logger *logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Default()
	}
	return &Guard{redis: redisClient, logger: logger, config: config}
}

// Check records one submission attempt against both windows and returns the
// first limit it trips, or an allowed result.
func (g *Guard) Check(ctx context.Context, ip, phone string) (*Result, error) {
	if res := g.check(ctx, DimensionIP, ip, g.config.MaxPerIP, g.config.IPWindow); !res.Allowed {
		return res, fmt.Errorf("%w: ip limit", ErrRateLimited)
	}
	if res := g.check(ctx, DimensionPhone, phone, g.config.MaxPerPhone, g.config.PhoneWindow); !res.Allowed {
		return res, fmt.Errorf("%w: phone limit", ErrRateLimited)
	}
	return &Result{Allowed: true}, nil
}

func (g *Guard) check(ctx context.Context, dimension, value string, max int, window time.Duration) *Result {
	if value == "" || max <= 0 {
		return &Result{Allowed: true, Dimension: dimension}
	}

	key := fmt.Sprintf("abuse:%s:%s", dimension, value)
	count, expiry, err := g.incrementAndGet(ctx, key, window)
	if err != nil {
		g.logger.Error("abuse check failed", "error", err, "key", key)
		// Fail open when Redis is down.
		return &Result{Allowed: true, Dimension: dimension}
	}

	result := &Result{
		Allowed:      count <= max,
		Dimension:    dimension,
		CurrentCount: count,
		MaxAllowed:   max,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		g.logger.Warn("public submission rate limited",
			"dimension", dimension, "count", count, "max", max)
	}
	return result
}

func (g *Guard) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		g.redis.Expire(ctx, key, window)
	}
	ttl, err := g.redis.TTL(ctx, key).Result()
	if err != nil {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}

// Reset clears the counters for one IP and phone (admin use).
func (g *Guard) Reset(ctx context.Context, ip, phone string) error {
	keys := []string{
		fmt.Sprintf("abuse:%s:%s", DimensionIP, ip),
		fmt.Sprintf("abuse:%s:%s", DimensionPhone, phone),
	}
	return g.redis.Del(ctx, keys...).Err()
}
