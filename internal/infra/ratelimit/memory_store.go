package ratelimit

import (
	"context"
	"sync"
	"time"

	"product-entitlements/internal/domain/ports/repository"
)

var _ repository.AttemptStore = (*MemoryStore)(nil)

type counter struct {
	count     int
	expiresAt time.Time
}

// MemoryStore is a process-local AttemptStore. State is lost on restart,
// which only weakens throttling.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often expired counters are dropped.
// Set to 0 to disable automatic cleanup.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		counters:        make(map[string]*counter),
		now:             time.Now,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}
	if ms.cleanupInterval > 0 {
		go ms.cleanup()
	}
	return ms
}

// live returns the counter for key, dropping it when its window elapsed.
// Caller holds mu.
func (ms *MemoryStore) live(key string, now time.Time) *counter {
	c, ok := ms.counters[key]
	if !ok {
		return nil
	}
	if !now.Before(c.expiresAt) {
		delete(ms.counters, key)
		return nil
	}
	return c
}

func (ms *MemoryStore) Get(_ context.Context, key string) (int, time.Duration, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	c := ms.live(key, now)
	if c == nil {
		return 0, 0, nil
	}
	return c.count, c.expiresAt.Sub(now), nil
}

func (ms *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	c := ms.live(key, now)
	if c == nil {
		c = &counter{expiresAt: now.Add(window)}
		ms.counters[key] = c
	}
	c.count++
	return c.count, c.expiresAt.Sub(now), nil
}

func (ms *MemoryStore) Reset(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.counters, key)
	return nil
}

// Len returns the number of tracked keys, expired ones included until cleanup.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.counters)
}

// Close stops the cleanup goroutine.
func (ms *MemoryStore) Close() {
	ms.stopOnce.Do(func() { close(ms.stopCleanup) })
}

func (ms *MemoryStore) cleanup() {
	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.mu.Lock()
			now := ms.now()
			for k, c := range ms.counters {
				if !now.Before(c.expiresAt) {
					delete(ms.counters, k)
				}
			}
			ms.mu.Unlock()
		case <-ms.stopCleanup:
			return
		}
	}
}
