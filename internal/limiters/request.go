package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited means the identity exceeded the challenge-creation
	// budget inside the trailing window.
	ErrRateLimited = errors.New("challenge requests rate limited")
	// ErrRedisUnavailable means the limiter backend is unreachable.
	ErrRedisUnavailable = errors.New("request limiter redis unavailable")
)

// RequestConfig tunes the sliding-window challenge-request limiter.
type RequestConfig struct {
	Max    int
	Window time.Duration
}

// RequestLimiter enforces at most Max challenge creations per (identity,
// purpose) inside the trailing Window, using a Redis sorted set of creation
// timestamps.
type RequestLimiter struct {
	redis  redis.UniversalClient
	config RequestConfig
	prefix string
	now    func() time.Time
}

// NewRequestLimiter creates a RequestLimiter with the given key prefix.
func NewRequestLimiter(redisClient redis.UniversalClient, cfg RequestConfig, prefix string) *RequestLimiter {
	if prefix == "" {
		prefix = "kgr"
	}
	return &RequestLimiter{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
		now:    time.Now,
	}
}

func (l *RequestLimiter) key(identityID, purpose string) string {
	return l.prefix + ":" + purpose + ":" + identityID
}

// Allow checks the trailing window and, if within budget, records this
// creation. Returns ErrRateLimited when Max creations already happened
// inside the window.
func (l *RequestLimiter) Allow(ctx context.Context, identityID, purpose string) error {
	if l == nil || l.config.Max <= 0 {
		return nil
	}

	key := l.key(identityID, purpose)
	now := l.now()
	cutoff := now.Add(-l.config.Window)

	if err := l.redis.ZRemRangeByScore(ctx, key,
		"-inf", strconv.FormatInt(cutoff.UnixMilli(), 10),
	).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, err := l.redis.ZCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.Max) {
		return ErrRateLimited
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	if err := l.redis.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: member,
	}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Safety net so abandoned identities do not leak sets forever.
	if err := l.redis.Expire(ctx, key, 2*l.config.Window).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Reset clears the window for (identityID, purpose).
func (l *RequestLimiter) Reset(ctx context.Context, identityID, purpose string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(identityID, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
