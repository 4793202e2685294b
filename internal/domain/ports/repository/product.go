package repository

import (
	"context"

	"product-entitlements/internal/domain/model"
)

// ProductCatalog serves the static product configuration.
type ProductCatalog interface {
	// FindBySlug returns domain.ErrProductNotFound for unknown slugs.
	FindBySlug(ctx context.Context, slug string) (*model.Product, error)
	List(ctx context.Context) ([]*model.Product, error)
}
