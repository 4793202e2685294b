// File: internal/usecase/activation_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/adapter"
	"product-entitlements/internal/domain/ports/repository"
	"product-entitlements/internal/infra/logging"
	"product-entitlements/internal/infra/metrics"
)

// ActivationUseCase issues activation codes in batches and redeems them.
type ActivationUseCase interface {
	GenerateBatch(ctx context.Context, req GenerateRequest, now time.Time) (*model.Batch, error)
	Redeem(ctx context.Context, code, userID string, now time.Time) (*model.Redemption, error)
	ListBatch(ctx context.Context, batchID string) ([]*model.ActivationCode, error)
}

// GenerateRequest describes one batch. DurationDays overrides the grant's
// default length; ExpiresInDays bounds how long the codes can be redeemed.
type GenerateRequest struct {
	Grant         model.Grant
	Quantity      int
	ExpiresInDays *int
	DurationDays  *int
	IssuedBy      string
}

type ActivationConfig struct {
	MinBatch int
	MaxBatch int
	Dev      bool
}

var _ ActivationUseCase = (*ActivationUC)(nil)

type ActivationUC struct {
	codes       repository.ActivationCodeRepository
	memberships repository.MembershipRepository
	purchases   repository.PurchaseRepository
	catalog     repository.ProductCatalog
	tm          repository.TransactionManager
	audit       adapter.AuditSink
	cfg         ActivationConfig
	gen         CodeGenerator
	log         *zerolog.Logger
}

func NewActivationUseCase(
	codes repository.ActivationCodeRepository,
	memberships repository.MembershipRepository,
	purchases repository.PurchaseRepository,
	catalog repository.ProductCatalog,
	tm repository.TransactionManager,
	audit adapter.AuditSink,
	cfg ActivationConfig,
	logger *zerolog.Logger,
) *ActivationUC {
	if cfg.MinBatch <= 0 {
		cfg.MinBatch = 1
	}
	if cfg.MaxBatch < cfg.MinBatch {
		cfg.MaxBatch = 100
	}
	l := logger.With().Str("component", "ActivationUC").Logger()
	return &ActivationUC{
		codes:       codes,
		memberships: memberships,
		purchases:   purchases,
		catalog:     catalog,
		tm:          tm,
		audit:       auditOrNop(audit),
		cfg:         cfg,
		gen:         generateActivationCode,
		log:         &l,
	}
}

// SetCodeGenerator replaces the random source of candidate codes.
func (uc *ActivationUC) SetCodeGenerator(g CodeGenerator) {
	if g != nil {
		uc.gen = g
	}
}

// GenerateBatch draws candidates until Quantity unique codes are collected,
// rejecting duplicates within the batch and codes already in storage. After
// 3×Quantity draws the whole batch fails and nothing is persisted.
func (uc *ActivationUC) GenerateBatch(ctx context.Context, req GenerateRequest, now time.Time) (*model.Batch, error) {
	defer logging.TraceDuration(uc.log, "ActivationUC.GenerateBatch")()

	if err := uc.validateGenerate(ctx, &req); err != nil {
		return nil, err
	}

	duration := req.Grant.DefaultDurationDays()
	if req.DurationDays != nil {
		duration = *req.DurationDays
	}
	var codeExpiresAt *time.Time
	if req.ExpiresInDays != nil {
		codeExpiresAt = model.CalculateExpiryDays(*req.ExpiresInDays, now)
	}

	picked, err := uc.pickUnique(ctx, req.Quantity)
	if err != nil {
		return nil, err
	}

	batch := &model.Batch{
		ID:        ulid.Make().String(),
		Grant:     req.Grant,
		IssuedBy:  req.IssuedBy,
		CreatedAt: now,
		Codes:     make([]*model.ActivationCode, 0, len(picked)),
	}
	for _, c := range picked {
		batch.Codes = append(batch.Codes, &model.ActivationCode{
			ID:            uuid.NewString(),
			Code:          c,
			Grant:         req.Grant,
			DurationDays:  duration,
			BatchID:       batch.ID,
			IssuedBy:      req.IssuedBy,
			CreatedAt:     now,
			CodeExpiresAt: codeExpiresAt,
		})
	}

	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return uc.codes.SaveBatch(ctx, tx, batch.Codes)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// another batch claimed one of our candidates between check and insert
			uc.log.Warn().Str("batch_id", batch.ID).Msg("code collision on insert; batch discarded")
			return nil, domain.ErrBatchExhausted
		}
		uc.log.Error().Err(err).Str("batch_id", batch.ID).Msg("persist batch failed")
		return nil, err
	}

	metrics.AddCodesGenerated(string(req.Grant.Kind), len(batch.Codes))
	uc.log.Info().
		Str("batch_id", batch.ID).
		Str("issued_by", req.IssuedBy).
		Str("kind", string(req.Grant.Kind)).
		Int("quantity", len(batch.Codes)).
		Msg("activation batch generated")
	uc.audit.Append(ctx, model.AuditEvent{
		Type:    model.AuditBatchGenerated,
		ActorID: req.IssuedBy,
		At:      now,
		Fields: map[string]any{
			"batch_id":      batch.ID,
			"quantity":      len(batch.Codes),
			"grant_kind":    string(req.Grant.Kind),
			"level":         string(req.Grant.Level),
			"product_slug":  req.Grant.ProductSlug,
			"duration_days": duration,
		},
	})
	return batch, nil
}

func (uc *ActivationUC) validateGenerate(ctx context.Context, req *GenerateRequest) error {
	if req.IssuedBy == "" {
		return domain.ErrInvalidArgument
	}
	if req.Quantity < uc.cfg.MinBatch || req.Quantity > uc.cfg.MaxBatch {
		return domain.ErrInvalidQuantity
	}
	if err := req.Grant.Validate(); err != nil {
		return err
	}
	if req.Grant.Kind == model.GrantProduct {
		p, err := uc.catalog.FindBySlug(ctx, req.Grant.ProductSlug)
		if err != nil {
			return err
		}
		if !p.AcceptsPurchase() {
			return domain.ErrInvalidGrant
		}
	}
	if req.ExpiresInDays != nil && (*req.ExpiresInDays <= 0 || *req.ExpiresInDays > model.MaxGrantDays) {
		return domain.ErrInvalidExpiry
	}
	if req.DurationDays != nil {
		d := *req.DurationDays
		switch {
		case d < 0 || d > model.MaxGrantDays:
			return domain.ErrInvalidArgument
		case req.Grant.Kind == model.GrantMembership && req.Grant.Level.Bounded() && d == 0:
			return domain.ErrInvalidArgument
		case req.Grant.Kind == model.GrantMembership && !req.Grant.Level.Bounded() && d != 0:
			return domain.ErrInvalidArgument
		}
	}
	return nil
}

func (uc *ActivationUC) pickUnique(ctx context.Context, quantity int) ([]string, error) {
	budget := 3 * quantity
	seen := make(map[string]struct{}, quantity)
	picked := make([]string, 0, quantity)

	for len(picked) < quantity {
		need := quantity - len(picked)
		if need > budget {
			need = budget
		}
		if need == 0 {
			uc.log.Warn().Int("quantity", quantity).Int("collected", len(picked)).Msg("code generation budget exhausted")
			return nil, domain.ErrBatchExhausted
		}

		round := make([]string, 0, need)
		for i := 0; i < need; i++ {
			budget--
			c, err := uc.gen()
			if err != nil {
				return nil, err
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			round = append(round, c)
		}
		if len(round) == 0 {
			continue
		}

		existing, err := uc.codes.Existing(ctx, repository.NoTX, round)
		if err != nil {
			return nil, err
		}
		taken := make(map[string]struct{}, len(existing))
		for _, e := range existing {
			taken[e] = struct{}{}
		}
		for _, c := range round {
			if _, ok := taken[c]; !ok {
				picked = append(picked, c)
			}
		}
	}
	return picked, nil
}

// Redeem applies the code's grant to userID and flips the code to used in one
// transaction. Concurrent redeemers of the same code serialize on the code
// row: exactly one succeeds, the rest get domain.ErrCodeAlreadyUsed.
func (uc *ActivationUC) Redeem(ctx context.Context, code, userID string, now time.Time) (*model.Redemption, error) {
	defer logging.TraceDuration(uc.log, "ActivationUC.Redeem")()
	l := logging.With(ctx, uc.log)

	code = NormalizeCode(code)
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if code == "" {
		metrics.IncRedemption("not_found")
		return nil, domain.ErrCodeNotFound
	}

	var out *model.Redemption
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ac, err := uc.codes.FindByCode(ctx, tx, code)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrCodeNotFound
			}
			return err
		}
		if ac.Expired(now) {
			return domain.ErrCodeExpired
		}
		if ac.Used {
			return domain.ErrCodeAlreadyUsed
		}

		switch ac.Grant.Kind {
		case model.GrantMembership:
			out, err = uc.redeemMembership(ctx, tx, ac, userID, now)
		case model.GrantProduct:
			out, err = uc.redeemProduct(ctx, tx, ac, userID, now)
		default:
			err = domain.ErrInvalidGrant
		}
		return err
	})
	if err != nil {
		result := redemptionResult(err)
		metrics.IncRedemption(result)
		ev := l.Info()
		if result == "error" {
			ev = l.Error()
		}
		ev.Err(err).Str("code", logging.Redact(code, uc.cfg.Dev)).Str("user_id", userID).Msg("redemption refused")
		return nil, err
	}

	metrics.IncRedemption("ok")
	l.Info().
		Str("code", logging.Redact(code, uc.cfg.Dev)).
		Str("user_id", userID).
		Str("kind", string(out.Grant.Kind)).
		Int("days_added", out.DaysAdded).
		Msg("activation code redeemed")
	uc.audit.Append(ctx, model.AuditEvent{
		Type:    model.AuditCodeRedeemed,
		ActorID: userID,
		UserID:  userID,
		At:      now,
		Fields: map[string]any{
			"code":         logging.Redact(code, false),
			"grant_kind":   string(out.Grant.Kind),
			"level":        string(out.Level),
			"product_slug": out.Grant.ProductSlug,
			"days_added":   out.DaysAdded,
		},
	})
	return out, nil
}

// The membership row is locked before the code flip so two codes redeemed by
// the same user cannot both extend from the same base expiry.
func (uc *ActivationUC) redeemMembership(ctx context.Context, tx repository.Tx, ac *model.ActivationCode, userID string, now time.Time) (*model.Redemption, error) {
	current, err := uc.memberships.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	next, err := model.ApplyGrant(current, ac.Grant.Level, ac.DurationDays, now)
	if err != nil {
		return nil, err
	}
	if err := uc.codes.MarkUsed(ctx, tx, ac.Code, userID, now); err != nil {
		return nil, err
	}
	if err := uc.memberships.Save(ctx, tx, next); err != nil {
		return nil, err
	}
	return &model.Redemption{
		Code:      ac.Code,
		Grant:     ac.Grant,
		Level:     next.Level,
		Name:      next.Level.Name(),
		ExpiresAt: next.ExpiresAt,
		DaysAdded: ac.DurationDays,
	}, nil
}

func (uc *ActivationUC) redeemProduct(ctx context.Context, tx repository.Tx, ac *model.ActivationCode, userID string, now time.Time) (*model.Redemption, error) {
	product, err := uc.catalog.FindBySlug(ctx, ac.Grant.ProductSlug)
	if err != nil {
		return nil, err
	}
	if ac.DurationDays < 0 || ac.DurationDays > model.MaxGrantDays {
		return nil, domain.ErrInvalidArgument
	}
	if err := uc.codes.MarkUsed(ctx, tx, ac.Code, userID, now); err != nil {
		return nil, err
	}
	p := &model.ProductPurchase{
		ID:           uuid.NewString(),
		UserID:       userID,
		ProductSlug:  product.Slug,
		PurchaseType: model.PurchaseTypeActivationCode,
		CreatedAt:    now,
	}
	if ac.DurationDays > 0 {
		p.ExpiresAt = model.CalculateExpiryDays(ac.DurationDays, now)
	}
	if err := uc.purchases.Save(ctx, tx, p); err != nil {
		return nil, err
	}
	return &model.Redemption{
		Code:      ac.Code,
		Grant:     ac.Grant,
		Name:      product.Name,
		ExpiresAt: p.ExpiresAt,
		DaysAdded: ac.DurationDays,
	}, nil
}

// ListBatch returns the codes of a batch with their usage state.
func (uc *ActivationUC) ListBatch(ctx context.Context, batchID string) ([]*model.ActivationCode, error) {
	if batchID == "" {
		return nil, domain.ErrInvalidArgument
	}
	codes, err := uc.codes.ListByBatch(ctx, repository.NoTX, batchID)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, domain.ErrBatchNotFound
	}
	return codes, nil
}

func redemptionResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCodeExpired):
		return "expired"
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		return "already_used"
	case errors.Is(err, domain.ErrValidation):
		return "rejected"
	default:
		return "error"
	}
}
