package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/repository"
)

type PostgresPurchaseRepo struct {
	db *pgxpool.Pool
}

func NewPostgresPurchaseRepo(db *pgxpool.Pool) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{db: db}
}

var _ repository.PurchaseRepository = (*PostgresPurchaseRepo)(nil)

const purchaseColumns = `id, user_id, product_slug, purchase_type, created_at, expires_at`

func (r *PostgresPurchaseRepo) Save(ctx context.Context, tx repository.Tx, pu *model.ProductPurchase) error {
	if pu.CreatedAt.IsZero() {
		pu.CreatedAt = time.Now().UTC()
	}
	_, err := execSQL(ctx, r.db, tx, `
		INSERT INTO product_purchases (id, user_id, product_slug, purchase_type, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, pu.ID, pu.UserID, pu.ProductSlug, pu.PurchaseType, pu.CreatedAt, pu.ExpiresAt)
	return translateErr(err)
}

func (r *PostgresPurchaseRepo) FindActive(ctx context.Context, tx repository.Tx, userID, productSlug string, now time.Time) (*model.ProductPurchase, error) {
	row, err := pickRow(ctx, r.db, tx, `
		SELECT `+purchaseColumns+`
		FROM product_purchases
		WHERE user_id=$1 AND product_slug=$2 AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY expires_at DESC NULLS FIRST
		LIMIT 1
	`, userID, productSlug, now)
	if err != nil {
		return nil, err
	}
	var pu model.ProductPurchase
	if err := row.Scan(&pu.ID, &pu.UserID, &pu.ProductSlug, &pu.PurchaseType, &pu.CreatedAt, &pu.ExpiresAt); err != nil {
		return nil, translateErr(err)
	}
	return &pu, nil
}

func (r *PostgresPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.ProductPurchase, error) {
	rows, err := queryRows(ctx, r.db, tx, `
		SELECT `+purchaseColumns+`
		FROM product_purchases WHERE user_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var out []*model.ProductPurchase
	for rows.Next() {
		var pu model.ProductPurchase
		if err := rows.Scan(&pu.ID, &pu.UserID, &pu.ProductSlug, &pu.PurchaseType, &pu.CreatedAt, &pu.ExpiresAt); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, &pu)
	}
	return out, translateErr(rows.Err())
}
