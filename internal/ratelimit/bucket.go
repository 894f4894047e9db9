package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket throttles a single connection: capacity tokens refilled evenly
// over interval.
type TokenBucket struct {
	limiter *rate.Limiter
	now     func() time.Time
}

func NewTokenBucket(capacity int, interval time.Duration) *TokenBucket {
	return newTokenBucket(capacity, interval, time.Now)
}

func newTokenBucket(capacity int, interval time.Duration, now func() time.Time) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Every(interval/time.Duration(capacity)), capacity),
		now:     now,
	}
}

func (b *TokenBucket) Allow() bool {
	return b.limiter.AllowN(b.now(), 1)
}
