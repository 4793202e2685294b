package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/adapter"
	"product-entitlements/internal/domain/ports/repository"
	"product-entitlements/internal/infra/logging"
	"product-entitlements/internal/infra/metrics"
)

// DefaultTrialGrace is how long a consumed trial keeps granting access.
const DefaultTrialGrace = 2 * time.Hour

// TrialUseCase manages per-user, per-product trial counters.
type TrialUseCase interface {
	Consume(ctx context.Context, userID, productSlug string, now time.Time, ip string) (int, error)
	Status(ctx context.Context, userID, productSlug string, now time.Time) (*model.TrialStatus, error)
	Reset(ctx context.Context, adminID, userID, productSlug string, now time.Time) error
}

var _ TrialUseCase = (*TrialUC)(nil)

type TrialUC struct {
	trials  repository.TrialRepository
	catalog repository.ProductCatalog
	audit   adapter.AuditSink
	grace   time.Duration
	log     *zerolog.Logger
}

func NewTrialUseCase(trials repository.TrialRepository, catalog repository.ProductCatalog, audit adapter.AuditSink, grace time.Duration, logger *zerolog.Logger) *TrialUC {
	if grace <= 0 {
		grace = DefaultTrialGrace
	}
	l := logger.With().Str("component", "TrialUC").Logger()
	return &TrialUC{trials: trials, catalog: catalog, audit: auditOrNop(audit), grace: grace, log: &l}
}

// Consume spends one trial use. The decrement is a single conditional write,
// so concurrent calls can never drive the counter below zero. The log append
// that follows is best-effort.
func (uc *TrialUC) Consume(ctx context.Context, userID, productSlug string, now time.Time, ip string) (int, error) {
	l := logging.With(ctx, uc.log)
	if userID == "" {
		return 0, domain.ErrInvalidArgument
	}
	product, err := uc.catalog.FindBySlug(ctx, productSlug)
	if err != nil {
		return 0, err
	}
	if !product.TrialEnabled {
		metrics.IncTrialConsumption(product.Slug, "not_supported")
		return 0, domain.ErrTrialNotSupported
	}

	remaining, err := uc.trials.Consume(ctx, repository.NoTX, userID, product.Slug, product.TrialQuota, now)
	if err != nil {
		if errors.Is(err, domain.ErrTrialExhausted) {
			metrics.IncTrialConsumption(product.Slug, "exhausted")
			return 0, err
		}
		metrics.IncTrialConsumption(product.Slug, "error")
		l.Error().Err(err).Str("product", product.Slug).Msg("trial consume failed")
		return 0, err
	}

	entry := &model.TrialLog{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProductSlug: product.Slug,
		ConsumedAt:  now,
		IP:          ip,
	}
	if err := uc.trials.AppendLog(ctx, repository.NoTX, entry); err != nil {
		l.Warn().Err(err).Str("product", product.Slug).Msg("trial log append failed")
	}

	metrics.IncTrialConsumption(product.Slug, "ok")
	l.Info().Str("user_id", userID).Str("product", product.Slug).Int("remaining", remaining).Msg("trial consumed")
	uc.audit.Append(ctx, model.AuditEvent{
		Type:    model.AuditTrialConsumed,
		ActorID: userID,
		UserID:  userID,
		At:      now,
		Fields:  map[string]any{"product_slug": product.Slug, "remaining": remaining, "ip": ip},
	})
	return remaining, nil
}

// Status reports the remaining count and whether a trial session is open.
// It never creates or changes a counter.
func (uc *TrialUC) Status(ctx context.Context, userID, productSlug string, now time.Time) (*model.TrialStatus, error) {
	product, err := uc.catalog.FindBySlug(ctx, productSlug)
	if err != nil {
		return nil, err
	}
	if !product.TrialEnabled {
		return nil, domain.ErrTrialNotSupported
	}
	return trialStatus(ctx, uc.trials, product, userID, now, uc.grace)
}

// Reset restores the counter to the product quota. It is the only way
// remaining goes up.
func (uc *TrialUC) Reset(ctx context.Context, adminID, userID, productSlug string, now time.Time) error {
	if adminID == "" || userID == "" {
		return domain.ErrInvalidArgument
	}
	product, err := uc.catalog.FindBySlug(ctx, productSlug)
	if err != nil {
		return err
	}
	if !product.TrialEnabled {
		return domain.ErrTrialNotSupported
	}
	if err := uc.trials.Reset(ctx, repository.NoTX, userID, product.Slug, product.TrialQuota, now); err != nil {
		uc.log.Error().Err(err).Str("user_id", userID).Str("product", product.Slug).Msg("trial reset failed")
		return err
	}
	uc.log.Info().Str("admin_id", adminID).Str("user_id", userID).Str("product", product.Slug).Msg("trial reset")
	uc.audit.Append(ctx, model.AuditEvent{
		Type:    model.AuditTrialReset,
		ActorID: adminID,
		UserID:  userID,
		At:      now,
		Fields:  map[string]any{"product_slug": product.Slug, "quota": product.TrialQuota},
	})
	return nil
}

// trialStatus is shared with the access resolver; a missing counter means
// the full quota is still available.
func trialStatus(ctx context.Context, trials repository.TrialRepository, product *model.Product, userID string, now time.Time, grace time.Duration) (*model.TrialStatus, error) {
	st := &model.TrialStatus{ProductSlug: product.Slug, Remaining: product.TrialQuota}

	counter, err := trials.FindCounter(ctx, repository.NoTX, userID, product.Slug)
	switch {
	case err == nil:
		st.Remaining = counter.Remaining
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, err
	}

	last, err := trials.LatestLogSince(ctx, repository.NoTX, userID, product.Slug, now.Add(-grace))
	switch {
	case err == nil:
		ends := last.SessionEndsAt(grace)
		if ends.After(now) {
			st.InSession = true
			st.SessionEndsAt = &ends
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, err
	}
	return st, nil
}
