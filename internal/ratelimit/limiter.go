// Package ratelimit bounds how often an account may send chat messages.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// callTimeout caps how long a send waits on Redis before failing open.
const callTimeout = 200 * time.Millisecond

// RedisLimiter is a fixed-window counter shared through Redis. It fails open:
// when Redis is unreachable or slow every call is allowed.
type RedisLimiter struct {
	client  *redis.Client
	limit   int
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewRedisLimiter builds a limiter allowing limit sends per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, logger *zap.Logger) *RedisLimiter {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &RedisLimiter{client: client, limit: limit, window: window, timeout: callTimeout, now: time.Now, logger: logger}
}

// Allow records one send for accountID and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, accountID int64) bool {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key := windowKey(accountID, l.now(), l.window)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate limiter unavailable; allowing send", zap.Int64("account_id", accountID), zap.Error(err))
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn("rate limiter expire failed", zap.String("key", key), zap.Error(err))
		}
	}
	return count <= int64(l.limit)
}

func windowKey(accountID int64, now time.Time, window time.Duration) string {
	bucket := now.UnixNano() / int64(window)
	return "chat:rate:" + strconv.FormatInt(accountID, 10) + ":" + strconv.FormatInt(bucket, 10)
}
