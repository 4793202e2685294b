package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/ports/repository"
	"product-entitlements/internal/infra/metrics"
)

// Action is a guarded operation.
type Action string

const (
	ActionLogin    Action = "login"
	ActionRegister Action = "register"
	ActionActivate Action = "activate"
	ActionGenerate Action = "generate"
)

// LimitRule blocks a key once MaxAttempts failures land inside Window.
type LimitRule struct {
	MaxAttempts int
	Window      time.Duration
}

var defaultLimitRule = LimitRule{MaxAttempts: 5, Window: 15 * time.Minute}

// LimitResult is the outcome of a Check.
type LimitResult struct {
	Allowed      bool
	Failures     int
	BlockedUntil *time.Time
}

// RateLimiter counts failed attempts per (identity, action). A success resets
// the counter. The store provides atomic increments, so concurrent requests
// from one key never lose a failure.
type RateLimiter struct {
	store repository.AttemptStore
	rules map[Action]LimitRule
	log   *zerolog.Logger
}

func NewRateLimiter(store repository.AttemptStore, rules map[Action]LimitRule, logger *zerolog.Logger) *RateLimiter {
	r := make(map[Action]LimitRule, len(rules))
	for a, rule := range rules {
		if rule.MaxAttempts <= 0 || rule.Window <= 0 {
			continue
		}
		r[a] = rule
	}
	l := logger.With().Str("component", "RateLimiter").Logger()
	return &RateLimiter{store: store, rules: r, log: &l}
}

func (rl *RateLimiter) rule(action Action) LimitRule {
	if r, ok := rl.rules[action]; ok {
		return r
	}
	return defaultLimitRule
}

// AttemptKey builds the storage key for one identity and action.
func AttemptKey(identity string, action Action) string {
	return fmt.Sprintf("rate_limit:%s:%s", action, identity)
}

// Check reports whether identity may attempt action. Store failures fail
// open: losing limiter state weakens throttling but never entitlements.
func (rl *RateLimiter) Check(ctx context.Context, identity string, action Action, now time.Time) *LimitResult {
	rule := rl.rule(action)
	count, ttl, err := rl.store.Get(ctx, AttemptKey(identity, action))
	if err != nil {
		metrics.IncRateLimitStoreError()
		rl.log.Warn().Err(err).Str("action", string(action)).Msg("attempt store read failed; allowing")
		return &LimitResult{Allowed: true}
	}
	res := &LimitResult{Allowed: count < rule.MaxAttempts, Failures: count}
	if !res.Allowed {
		if ttl <= 0 {
			ttl = rule.Window
		}
		until := now.Add(ttl)
		res.BlockedUntil = &until
	}
	return res
}

// Guard returns a *domain.RateLimitedError when identity is blocked for action.
func (rl *RateLimiter) Guard(ctx context.Context, identity string, action Action, now time.Time) error {
	res := rl.Check(ctx, identity, action, now)
	if res.Allowed {
		return nil
	}
	metrics.IncRateLimitBlock(string(action))
	rl.log.Info().Str("action", string(action)).Str("identity", identity).Time("blocked_until", *res.BlockedUntil).Msg("attempt blocked")
	return &domain.RateLimitedError{Action: string(action), BlockedUntil: *res.BlockedUntil}
}

// RecordAttempt resets the counter on success and counts a failure otherwise.
func (rl *RateLimiter) RecordAttempt(ctx context.Context, identity string, action Action, success bool) {
	key := AttemptKey(identity, action)
	if success {
		if err := rl.store.Reset(ctx, key); err != nil {
			metrics.IncRateLimitStoreError()
			rl.log.Warn().Err(err).Str("action", string(action)).Msg("attempt store reset failed")
		}
		return
	}
	rule := rl.rule(action)
	count, _, err := rl.store.Incr(ctx, key, rule.Window)
	if err != nil {
		metrics.IncRateLimitStoreError()
		rl.log.Warn().Err(err).Str("action", string(action)).Msg("attempt store increment failed")
		return
	}
	if count == rule.MaxAttempts {
		rl.log.Info().Str("action", string(action)).Str("identity", identity).Int("failures", count).Msg("attempt threshold reached")
	}
}
