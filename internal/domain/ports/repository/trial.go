package repository

import (
	"context"
	"time"

	"product-entitlements/internal/domain/model"
)

type TrialRepository interface {
	// FindCounter returns domain.ErrNotFound when the user never touched the trial.
	FindCounter(ctx context.Context, tx Tx, userID, productSlug string) (*model.TrialCounter, error)
	// Consume creates the counter at quota when missing, then decrements it
	// only while remaining > 0. It returns domain.ErrTrialExhausted when no row
	// was decremented.
	Consume(ctx context.Context, tx Tx, userID, productSlug string, quota int, now time.Time) (int, error)
	// Reset sets remaining back to quota.
	Reset(ctx context.Context, tx Tx, userID, productSlug string, quota int, now time.Time) error
	AppendLog(ctx context.Context, tx Tx, l *model.TrialLog) error
	// LatestLogSince returns the newest consumption at or after since, or domain.ErrNotFound.
	LatestLogSince(ctx context.Context, tx Tx, userID, productSlug string, since time.Time) (*model.TrialLog, error)
}
