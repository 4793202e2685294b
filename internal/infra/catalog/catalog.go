// Package catalog serves the product list declared in the configuration.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"product-entitlements/internal/config"
	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/repository"
)

var _ repository.ProductCatalog = (*Static)(nil)

// Static is an immutable in-memory catalog. Callers receive copies, so the
// catalog is safe for concurrent use without locking.
type Static struct {
	bySlug map[string]model.Product
	order  []string
}

// New validates every product and indexes it by slug.
func New(products []model.Product) (*Static, error) {
	s := &Static{bySlug: make(map[string]model.Product, len(products))}
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("product %q: %w", p.Slug, err)
		}
		if _, dup := s.bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("product %q: %w", p.Slug, domain.ErrAlreadyExists)
		}
		s.bySlug[p.Slug] = p
		s.order = append(s.order, p.Slug)
	}
	sort.Strings(s.order)
	return s, nil
}

// FromConfig converts the products section of the config.
func FromConfig(products []config.ProductConfig) (*Static, error) {
	out := make([]model.Product, 0, len(products))
	for _, pc := range products {
		level, err := model.ParseLevel(pc.RequiredLevel)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", pc.Slug, err)
		}
		name := pc.Name
		if name == "" {
			name = pc.Slug
		}
		out = append(out, model.Product{
			Slug:          pc.Slug,
			Name:          name,
			RequiredLevel: level,
			PriceType:     model.PriceType(pc.PriceType),
			TrialEnabled:  pc.TrialEnabled,
			TrialQuota:    pc.TrialQuota,
		})
	}
	return New(out)
}

func (s *Static) FindBySlug(_ context.Context, slug string) (*model.Product, error) {
	p, ok := s.bySlug[slug]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

// List returns the products ordered by slug.
func (s *Static) List(_ context.Context) ([]*model.Product, error) {
	out := make([]*model.Product, 0, len(s.order))
	for _, slug := range s.order {
		p := s.bySlug[slug]
		out = append(out, &p)
	}
	return out, nil
}
