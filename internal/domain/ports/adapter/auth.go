package adapter

import (
	"context"

	"product-entitlements/internal/domain/model"
)

// TokenVerifier turns a bearer token into the calling principal.
// Implementations return an error wrapping domain.ErrUnauthorized on failure.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*model.Principal, error)
}
