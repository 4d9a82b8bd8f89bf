package redis

import (
	"context"
	"time"

	"ebook-queue/internal/domain"
)

// RateLimiter is a fixed-window counter per (scope, subject).
type RateLimiter struct {
	c *Client
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c}
}

func (r *RateLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, error) {
	key := r.c.keys.rate(scope, subject)
	count, err := r.c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, domain.NewStoreError("rate limit", err)
	}

	if count == 1 {
		if err := r.c.cli.Expire(ctx, key, window).Err(); err != nil {
			return false, domain.NewStoreError("rate limit", err)
		}
	}

	return count <= int64(limit), nil
}
