// Package ratelimit implements fixed-window request limits in Redis with an
// in-process fallback for when Redis is unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/careadmin/careadmin/internal/platform/kv"
)

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is when the current window ends.
	Reset time.Time
	// Local is set when the decision came from the in-process fallback.
	Local bool
}

// RetryAfter is the whole number of seconds until Reset, at least 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.Reset.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type Limiter struct {
	rdb    redis.Cmdable
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local *gocache.Cache
}

func New(rdb redis.Cmdable, logger zerolog.Logger) *Limiter {
	return &Limiter{
		rdb:    rdb,
		logger: logger.With().Str("component", "ratelimit").Logger(),
		now:    time.Now,
		local:  gocache.New(10*time.Minute, 10*time.Minute),
	}
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// Allow counts one request against scope in the current window.
func (l *Limiter) Allow(ctx context.Context, scope string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{}, fmt.Errorf("rate limit needs a positive limit and window, got %d per %s", limit, window)
	}
	now := l.now()
	start := windowStart(now, window)
	res := Result{Limit: limit, Reset: start.Add(window)}

	key := kv.RateLimitKey(scope, start.Unix())
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		l.logger.Warn().Err(err).Str("scope", scope).Msg("redis rate limit unavailable, using local limiter")
		return l.allowLocal(scope, limit, window, res), nil
	}

	count := int(incr.Val())
	res.Allowed = count <= limit
	res.Remaining = max(limit-count, 0)
	return res, nil
}

func (l *Limiter) allowLocal(scope string, limit int, window time.Duration, res Result) Result {
	lim := l.localLimiter(scope, limit, window)
	res.Local = true
	res.Allowed = lim.Allow()
	res.Remaining = max(int(lim.Tokens()), 0)
	return res
}

func (l *Limiter) localLimiter(scope string, limit int, window time.Duration) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := fmt.Sprintf("%s|%d|%s", scope, limit, window)
	if v, ok := l.local.Get(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)
	l.local.Set(key, lim, gocache.DefaultExpiration)
	return lim
}

// Reset clears the current window for scope.
func (l *Limiter) Reset(ctx context.Context, scope string, window time.Duration) error {
	key := kv.RateLimitKey(scope, windowStart(l.now(), window).Unix())
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}
