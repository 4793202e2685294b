package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/adapter"
	"product-entitlements/internal/domain/ports/repository"
	"product-entitlements/internal/infra/metrics"
)

// MemberUseCase reads memberships and applies admin adjustments.
type MemberUseCase interface {
	Get(ctx context.Context, userID string) (*model.Membership, error)
	Adjust(ctx context.Context, req AdjustRequest, now time.Time) (*AdjustResult, error)
	CountActiveByLevel(ctx context.Context, now time.Time) (map[model.Level]int, error)
}

// AdjustRequest sets a user's level. CustomExpiry is only valid for bounded
// levels and must lie in the future; without it the level default applies.
type AdjustRequest struct {
	AdminID      string
	UserID       string
	Level        model.Level
	CustomExpiry *time.Time
}

type AdjustResult struct {
	PreviousLevel  model.Level
	NewLevel       model.Level
	PreviousExpiry *time.Time
	NewExpiry      *time.Time
}

var _ MemberUseCase = (*MemberUC)(nil)

type MemberUC struct {
	memberships repository.MembershipRepository
	tm          repository.TransactionManager
	audit       adapter.AuditSink
	log         *zerolog.Logger
}

func NewMemberUseCase(memberships repository.MembershipRepository, tm repository.TransactionManager, audit adapter.AuditSink, logger *zerolog.Logger) *MemberUC {
	l := logger.With().Str("component", "MemberUC").Logger()
	return &MemberUC{memberships: memberships, tm: tm, audit: auditOrNop(audit), log: &l}
}

// Get returns the stored row, or a level-none membership for unknown users.
func (uc *MemberUC) Get(ctx context.Context, userID string) (*model.Membership, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	m, err := uc.memberships.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.NoMembership(userID), nil
		}
		return nil, err
	}
	return m, nil
}

// Adjust overwrites the membership as an admin correction. Unlike code
// redemption it may lower the tier.
func (uc *MemberUC) Adjust(ctx context.Context, req AdjustRequest, now time.Time) (*AdjustResult, error) {
	if req.AdminID == "" || req.UserID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !req.Level.Valid() {
		return nil, domain.ErrInvalidLevel
	}
	expiry := model.CalculateExpiry(req.Level, now)
	if req.CustomExpiry != nil {
		if !req.Level.Bounded() || !req.CustomExpiry.After(now) {
			return nil, domain.ErrInvalidExpiry
		}
		ce := *req.CustomExpiry
		expiry = &ce
	}

	var res *AdjustResult
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := uc.memberships.LockForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		next := &model.Membership{
			UserID:      req.UserID,
			Level:       req.Level,
			ExpiresAt:   expiry,
			ActivatedAt: cur.ActivatedAt,
			UpdatedAt:   now,
		}
		if req.Level == model.LevelNone {
			next.ActivatedAt = nil
		} else if cur.EffectiveLevel(now) != req.Level || next.ActivatedAt == nil {
			next.ActivatedAt = &now
		}
		if err := uc.memberships.Save(ctx, tx, next); err != nil {
			return err
		}
		res = &AdjustResult{
			PreviousLevel:  cur.Level,
			NewLevel:       next.Level,
			PreviousExpiry: cur.ExpiresAt,
			NewExpiry:      next.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		metrics.IncAdminOperation("adjust_membership", "failed")
		uc.log.Error().Err(err).Str("user_id", req.UserID).Msg("adjust membership failed")
		return nil, err
	}

	metrics.IncAdminOperation("adjust_membership", "ok")
	uc.log.Info().
		Str("admin_id", req.AdminID).
		Str("user_id", req.UserID).
		Str("previous_level", string(res.PreviousLevel)).
		Str("new_level", string(res.NewLevel)).
		Msg("membership adjusted")
	fields := map[string]any{
		"previous_level": string(res.PreviousLevel),
		"new_level":      string(res.NewLevel),
	}
	if res.NewExpiry != nil {
		fields["new_expiry"] = res.NewExpiry.UTC().Format(time.RFC3339)
	}
	uc.audit.Append(ctx, model.AuditEvent{
		Type:    model.AuditMembershipAdjusted,
		ActorID: req.AdminID,
		UserID:  req.UserID,
		At:      now,
		Fields:  fields,
	})
	return res, nil
}

func (uc *MemberUC) CountActiveByLevel(ctx context.Context, now time.Time) (map[model.Level]int, error) {
	return uc.memberships.CountActiveByLevel(ctx, repository.NoTX, now)
}
