package repository

import (
	"context"
	"time"

	"product-entitlements/internal/domain/model"
)

type PurchaseRepository interface {
	Save(ctx context.Context, tx Tx, p *model.ProductPurchase) error
	// FindActive returns the purchase with the latest expiry that is still
	// active at now, or domain.ErrNotFound.
	FindActive(ctx context.Context, tx Tx, userID, productSlug string, now time.Time) (*model.ProductPurchase, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.ProductPurchase, error)
}
