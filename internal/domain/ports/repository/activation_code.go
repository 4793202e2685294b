package repository

import (
	"context"
	"time"

	"product-entitlements/internal/domain/model"
)

// ActivationCodeRepository is the port for managing activation codes.
type ActivationCodeRepository interface {
	// SaveBatch inserts all codes of a batch in one write. A code that already
	// exists fails the whole write with domain.ErrAlreadyExists.
	SaveBatch(ctx context.Context, tx Tx, codes []*model.ActivationCode) error
	// Existing returns the subset of candidates already present in storage.
	Existing(ctx context.Context, tx Tx, candidates []string) ([]string, error)
	// FindByCode finds a code regardless of its usage state.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.ActivationCode, error)
	// MarkUsed flips used=false to used=true. It returns domain.ErrCodeAlreadyUsed
	// when the code was already used by the time the update ran.
	MarkUsed(ctx context.Context, tx Tx, code, userID string, at time.Time) error
	// ListByBatch returns the codes of a batch ordered by code.
	ListByBatch(ctx context.Context, tx Tx, batchID string) ([]*model.ActivationCode, error)
}
