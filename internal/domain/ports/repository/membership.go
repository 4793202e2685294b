package repository

import (
	"context"
	"time"

	"product-entitlements/internal/domain/model"
)

type MembershipRepository interface {
	// FindByUser returns domain.ErrNotFound when the user never held a membership.
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Membership, error)
	// LockForUpdate creates the row at level none when missing and returns it
	// locked for the rest of the transaction.
	LockForUpdate(ctx context.Context, tx Tx, userID string) (*model.Membership, error)
	Save(ctx context.Context, tx Tx, m *model.Membership) error
	CountActiveByLevel(ctx context.Context, tx Tx, now time.Time) (map[model.Level]int, error)
}
