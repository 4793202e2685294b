package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/repository"
)

var _ repository.TrialRepository = (*trialRepo)(nil)

type trialRepo struct {
	pool *pgxpool.Pool
}

func NewTrialRepo(pool *pgxpool.Pool) *trialRepo {
	return &trialRepo{pool: pool}
}

func (r *trialRepo) FindCounter(ctx context.Context, tx repository.Tx, userID, productSlug string) (*model.TrialCounter, error) {
	row, err := pickRow(ctx, r.pool, tx, `
		SELECT user_id, product_slug, remaining, updated_at
		FROM trial_counters WHERE user_id=$1 AND product_slug=$2
	`, userID, productSlug)
	if err != nil {
		return nil, err
	}
	var c model.TrialCounter
	if err := row.Scan(&c.UserID, &c.ProductSlug, &c.Remaining, &c.UpdatedAt); err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}

// Consume seeds the counter idempotently, then decrements under the
// remaining > 0 predicate. Postgres re-evaluates the predicate after a
// concurrent update commits, so the counter never goes negative.
func (r *trialRepo) Consume(ctx context.Context, tx repository.Tx, userID, productSlug string, quota int, now time.Time) (int, error) {
	if _, err := execSQL(ctx, r.pool, tx, `
		INSERT INTO trial_counters (user_id, product_slug, remaining, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_slug) DO NOTHING
	`, userID, productSlug, quota, now); err != nil {
		return 0, translateErr(err)
	}

	row, err := pickRow(ctx, r.pool, tx, `
		UPDATE trial_counters
		SET remaining = remaining - 1, updated_at = $3
		WHERE user_id = $1 AND product_slug = $2 AND remaining > 0
		RETURNING remaining
	`, userID, productSlug, now)
	if err != nil {
		return 0, err
	}
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrTrialExhausted
		}
		return 0, translateErr(err)
	}
	return remaining, nil
}

func (r *trialRepo) Reset(ctx context.Context, tx repository.Tx, userID, productSlug string, quota int, now time.Time) error {
	_, err := execSQL(ctx, r.pool, tx, `
		INSERT INTO trial_counters (user_id, product_slug, remaining, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_slug) DO UPDATE SET
			remaining = EXCLUDED.remaining,
			updated_at = EXCLUDED.updated_at
	`, userID, productSlug, quota, now)
	return translateErr(err)
}

func (r *trialRepo) AppendLog(ctx context.Context, tx repository.Tx, l *model.TrialLog) error {
	_, err := execSQL(ctx, r.pool, tx, `
		INSERT INTO trial_logs (id, user_id, product_slug, consumed_at, ip)
		VALUES ($1, $2, $3, $4, $5)
	`, l.ID, l.UserID, l.ProductSlug, l.ConsumedAt, l.IP)
	return translateErr(err)
}

func (r *trialRepo) LatestLogSince(ctx context.Context, tx repository.Tx, userID, productSlug string, since time.Time) (*model.TrialLog, error) {
	row, err := pickRow(ctx, r.pool, tx, `
		SELECT id, user_id, product_slug, consumed_at, ip
		FROM trial_logs
		WHERE user_id=$1 AND product_slug=$2 AND consumed_at >= $3
		ORDER BY consumed_at DESC
		LIMIT 1
	`, userID, productSlug, since)
	if err != nil {
		return nil, err
	}
	var l model.TrialLog
	if err := row.Scan(&l.ID, &l.UserID, &l.ProductSlug, &l.ConsumedAt, &l.IP); err != nil {
		return nil, translateErr(err)
	}
	return &l, nil
}
