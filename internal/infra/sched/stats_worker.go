package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/infra/metrics"
)

// MembershipCounter is the read side of the member use case the worker needs.
type MembershipCounter interface {
	CountActiveByLevel(ctx context.Context, now time.Time) (map[model.Level]int, error)
}

// PoolStats reports connection pool usage. nil disables pool gauges.
type PoolStats func() (total, idle, inUse int32)

// StatsWorker periodically publishes membership and pool gauges. It only
// reads; it never changes a membership.
type StatsWorker struct {
	interval time.Duration
	members  MembershipCounter
	pool     PoolStats
	now      func() time.Time
	log      *zerolog.Logger
}

func NewStatsWorker(interval time.Duration, members MembershipCounter, pool PoolStats, logger *zerolog.Logger) *StatsWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "StatsWorker").Logger()
	return &StatsWorker{interval: interval, members: members, pool: pool, now: time.Now, log: &l}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting stats worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.Collect(ctx)
		}
	}
}

// Collect runs one publishing round.
func (w *StatsWorker) Collect(ctx context.Context) {
	counts, err := w.members.CountActiveByLevel(ctx, w.now())
	if err != nil {
		w.log.Error().Err(err).Msg("stats worker error")
	} else {
		metrics.SetMembershipsTotal(counts)
		w.log.Debug().Interface("memberships", counts).Msg("membership gauges updated")
	}
	if w.pool != nil {
		metrics.SetDBPoolStats(w.pool())
	}
}
