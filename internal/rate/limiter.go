package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyrelay/migration-server/internal/model"
)

var _ model.AttemptLimiter = (*Limiter)(nil)

// Limiter counts authorization attempts per session using Redis counters
// with fixed-window semantics.
type Limiter struct {
	redis  redis.UniversalClient
	window time.Duration
}

// New creates a Limiter backed by the given Redis client. window bounds how
// long an attempt counter lives.
func New(redisClient redis.UniversalClient, window time.Duration) *Limiter {
	return &Limiter{
		redis:  redisClient,
		window: window,
	}
}

// Hit registers one attempt for key and returns the attempt count inside the
// current window, including this one.
func (l *Limiter) Hit(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, attemptKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempt counter: %w", err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, attemptKey(key), l.window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set attempt counter TTL: %w", err)
		}
	}

	return count, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, attemptKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset attempt counter: %w", err)
	}
	return nil
}

func attemptKey(key string) string {
	return "migration:attempts:" + key
}
