package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/repository"
	"product-entitlements/internal/infra/metrics"
)

// AccessUseCase answers "may this user open this product right now".
type AccessUseCase interface {
	Resolve(ctx context.Context, userID, productSlug string, now time.Time) (*model.Decision, error)
	ListPurchases(ctx context.Context, userID string) ([]*model.ProductPurchase, error)
}

var _ AccessUseCase = (*AccessUC)(nil)

// AccessUC combines membership, purchases and trials into one decision.
// It only reads; calling it on every page load has no side effects.
type AccessUC struct {
	memberships repository.MembershipRepository
	purchases   repository.PurchaseRepository
	trials      repository.TrialRepository
	catalog     repository.ProductCatalog
	grace       time.Duration
	log         *zerolog.Logger
}

func NewAccessUseCase(
	memberships repository.MembershipRepository,
	purchases repository.PurchaseRepository,
	trials repository.TrialRepository,
	catalog repository.ProductCatalog,
	grace time.Duration,
	logger *zerolog.Logger,
) *AccessUC {
	if grace <= 0 {
		grace = DefaultTrialGrace
	}
	l := logger.With().Str("component", "AccessUC").Logger()
	return &AccessUC{
		memberships: memberships,
		purchases:   purchases,
		trials:      trials,
		catalog:     catalog,
		grace:       grace,
		log:         &l,
	}
}

// Resolve checks membership, then purchase, then trial, and reports the
// first source that grants access. Errors are reserved for unknown products
// and storage failures; a denial is a Decision with HasAccess=false.
func (uc *AccessUC) Resolve(ctx context.Context, userID, productSlug string, now time.Time) (*model.Decision, error) {
	product, err := uc.catalog.FindBySlug(ctx, productSlug)
	if err != nil {
		return nil, err
	}

	m, err := uc.memberships.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		m = model.NoMembership(userID)
	}
	current := m.EffectiveLevel(now)

	d, err := uc.resolve(ctx, product, m, current, userID, now)
	if err != nil {
		uc.log.Error().Err(err).Str("user_id", userID).Str("product", product.Slug).Msg("resolve access failed")
		return nil, err
	}
	d.ProductSlug = product.Slug
	metrics.IncAccessDecision(product.Slug, string(d.AccessType))
	return d, nil
}

func (uc *AccessUC) resolve(ctx context.Context, product *model.Product, m *model.Membership, current model.Level, userID string, now time.Time) (*model.Decision, error) {
	if product.AcceptsMembership() && model.HasAccess(m.Level, product.RequiredLevel, m.ExpiresAt, now) {
		return &model.Decision{
			HasAccess:     true,
			AccessType:    model.AccessMembership,
			CurrentLevel:  current,
			RequiredLevel: product.RequiredLevel,
			ExpiresAt:     m.ExpiresAt,
		}, nil
	}

	if product.AcceptsPurchase() {
		p, err := uc.purchases.FindActive(ctx, repository.NoTX, userID, product.Slug, now)
		switch {
		case err == nil:
			return &model.Decision{
				HasAccess:     true,
				AccessType:    model.AccessPurchased,
				CurrentLevel:  current,
				RequiredLevel: product.RequiredLevel,
				ExpiresAt:     p.ExpiresAt,
			}, nil
		case errors.Is(err, domain.ErrNotFound):
		default:
			return nil, err
		}
	}

	denied := &model.Decision{
		AccessType:    model.AccessNone,
		CurrentLevel:  current,
		RequiredLevel: product.RequiredLevel,
	}
	if !product.TrialEnabled {
		return denied, nil
	}

	st, err := trialStatus(ctx, uc.trials, product, userID, now, uc.grace)
	if err != nil {
		return nil, err
	}
	remaining := st.Remaining
	if remaining > 0 || st.InSession {
		return &model.Decision{
			HasAccess:      true,
			AccessType:     model.AccessTrial,
			CurrentLevel:   current,
			RequiredLevel:  product.RequiredLevel,
			ExpiresAt:      st.SessionEndsAt,
			TrialRemaining: &remaining,
		}, nil
	}
	denied.TrialRemaining = &remaining
	return denied, nil
}

// ListPurchases returns every purchase of userID, expired ones included.
func (uc *AccessUC) ListPurchases(ctx context.Context, userID string) ([]*model.ProductPurchase, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	list, err := uc.purchases.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		uc.log.Error().Err(err).Str("user_id", userID).Msg("list purchases failed")
		return nil, err
	}
	return list, nil
}
