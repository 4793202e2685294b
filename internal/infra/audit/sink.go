// Package audit writes audit events off the request path.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/adapter"
	"product-entitlements/internal/infra/metrics"
	"product-entitlements/internal/infra/worker"
)

var _ adapter.AuditSink = (*Sink)(nil)

// Sink hands events to a worker pool which writes them as structured log
// lines on a dedicated logger. Append never blocks and never fails: when the
// queue is full the event is dropped and counted.
type Sink struct {
	pool *worker.Pool
	out  zerolog.Logger
	log  *zerolog.Logger
}

// NewSink wraps pool. out receives one line per event; logger reports drops.
func NewSink(pool *worker.Pool, out zerolog.Logger, logger *zerolog.Logger) *Sink {
	l := logger.With().Str("component", "AuditSink").Logger()
	return &Sink{pool: pool, out: out, log: &l}
}

func (s *Sink) Append(_ context.Context, ev model.AuditEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	err := s.pool.Submit(func(context.Context) error {
		s.write(ev)
		return nil
	})
	if err != nil {
		metrics.IncAuditEvent("dropped")
		s.log.Warn().Err(err).Str("event", ev.Type).Str("user_id", ev.UserID).Msg("audit event dropped")
	}
}

func (s *Sink) write(ev model.AuditEvent) {
	e := s.out.Log().
		Str("event", ev.Type).
		Str("actor_id", ev.ActorID).
		Str("user_id", ev.UserID).
		Time("at", ev.At.UTC())
	if len(ev.Fields) > 0 {
		e = e.Fields(ev.Fields)
	}
	e.Msg("audit")
	metrics.IncAuditEvent("written")
}
