package repository

import (
	"context"
	"time"
)

// AttemptStore keeps failed-attempt counters for the rate limiter.
// Incr must be atomic per key; the window starts at the first failure.
type AttemptStore interface {
	// Get returns the current count and the time left in its window.
	Get(ctx context.Context, key string) (count int, ttl time.Duration, err error)
	Incr(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
	Reset(ctx context.Context, key string) error
}
