package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/repository"
)

var _ repository.ActivationCodeRepository = (*activationCodeRepo)(nil)

type activationCodeRepo struct {
	pool *pgxpool.Pool
}

func NewActivationCodeRepo(pool *pgxpool.Pool) repository.ActivationCodeRepository {
	return &activationCodeRepo{pool: pool}
}

const activationCodeColumns = `id, code, grant_kind, level, product_slug, duration_days, batch_id, issued_by,
	created_at, code_expires_at, used, used_by, used_at`

// SaveBatch writes every code in one statement. All codes of a batch share
// the grant, duration, issuer and expiry, so only ids and codes vary.
func (r *activationCodeRepo) SaveBatch(ctx context.Context, tx repository.Tx, codes []*model.ActivationCode) error {
	if len(codes) == 0 {
		return domain.ErrInvalidQuantity
	}
	first := codes[0]
	ids := make([]string, len(codes))
	values := make([]string, len(codes))
	for i, c := range codes {
		ids[i] = c.ID
		values[i] = c.Code
	}
	level, slug := grantColumns(first.Grant)
	createdAt := first.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tag, err := execSQL(ctx, r.pool, tx, `
		INSERT INTO activation_codes
			(id, code, grant_kind, level, product_slug, duration_days, batch_id, issued_by, created_at, code_expires_at)
		SELECT u.id::uuid, u.code, $3, $4, $5, $6, $7, $8, $9, $10
		FROM unnest($1::text[], $2::text[]) AS u(id, code)
	`, ids, values, string(first.Grant.Kind), level, slug, first.DurationDays, first.BatchID, first.IssuedBy, createdAt, first.CodeExpiresAt)
	if err != nil {
		return translateErr(err)
	}
	if int(tag.RowsAffected()) != len(codes) {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *activationCodeRepo) Existing(ctx context.Context, tx repository.Tx, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	rows, err := queryRows(ctx, r.pool, tx, `SELECT code FROM activation_codes WHERE code = ANY($1::text[])`, candidates)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, code)
	}
	return out, translateErr(rows.Err())
}

func (r *activationCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.ActivationCode, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+activationCodeColumns+` FROM activation_codes WHERE code=$1`, code)
	if err != nil {
		return nil, err
	}
	ac, err := scanActivationCode(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrCodeNotFound
	}
	return ac, err
}

// MarkUsed is a compare-and-set on used=false. Of two concurrent calls only
// one sees a row affected.
func (r *activationCodeRepo) MarkUsed(ctx context.Context, tx repository.Tx, code, userID string, at time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx, `
		UPDATE activation_codes
		SET used = TRUE, used_by = $2, used_at = $3
		WHERE code = $1 AND used = FALSE
	`, code, userID, at)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCodeAlreadyUsed
	}
	return nil
}

func (r *activationCodeRepo) ListByBatch(ctx context.Context, tx repository.Tx, batchID string) ([]*model.ActivationCode, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+activationCodeColumns+` FROM activation_codes WHERE batch_id=$1 ORDER BY code`, batchID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []*model.ActivationCode
	for rows.Next() {
		ac, err := scanActivationCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr(err)
	}
	if len(out) == 0 {
		return nil, domain.ErrBatchNotFound
	}
	return out, nil
}

func grantColumns(g model.Grant) (level, slug *string) {
	switch g.Kind {
	case model.GrantMembership:
		l := string(g.Level)
		return &l, nil
	case model.GrantProduct:
		s := g.ProductSlug
		return nil, &s
	}
	return nil, nil
}

func scanActivationCode(row scanner) (*model.ActivationCode, error) {
	var ac model.ActivationCode
	var kind string
	var level, slug *string
	if err := row.Scan(&ac.ID, &ac.Code, &kind, &level, &slug, &ac.DurationDays, &ac.BatchID, &ac.IssuedBy,
		&ac.CreatedAt, &ac.CodeExpiresAt, &ac.Used, &ac.UsedBy, &ac.UsedAt); err != nil {
		return nil, translateErr(err)
	}
	ac.Grant.Kind = model.GrantKind(kind)
	if level != nil {
		ac.Grant.Level = model.Level(*level)
	}
	if slug != nil {
		ac.Grant.ProductSlug = *slug
	}
	return &ac, nil
}
