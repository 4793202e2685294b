package model

import (
	"time"

	"product-entitlements/internal/domain"
)

// PriceType says which entitlement sources a product accepts.
type PriceType string

const (
	PriceMembership PriceType = "membership"
	PriceStandalone PriceType = "standalone"
	PriceBoth       PriceType = "both"
)

func (p PriceType) Valid() bool {
	return p == PriceMembership || p == PriceStandalone || p == PriceBoth
}

// Product is a gated item from the static catalog.
type Product struct {
	Slug          string
	Name          string
	RequiredLevel Level
	PriceType     PriceType
	TrialEnabled  bool
	TrialQuota    int
}

func (p *Product) AcceptsMembership() bool {
	return p.PriceType == PriceMembership || p.PriceType == PriceBoth
}

func (p *Product) AcceptsPurchase() bool {
	return p.PriceType == PriceStandalone || p.PriceType == PriceBoth
}

func (p *Product) Validate() error {
	if p.Slug == "" || !p.RequiredLevel.Valid() || !p.PriceType.Valid() {
		return domain.ErrInvalidArgument
	}
	if p.TrialEnabled && p.TrialQuota <= 0 {
		return domain.ErrInvalidArgument
	}
	return nil
}

// PurchaseType values recorded on ProductPurchase rows.
const (
	PurchaseTypeActivationCode = "activation_code"
	PurchaseTypeStandalone     = "standalone"
)

// ProductPurchase is one append-only purchase event.
type ProductPurchase struct {
	ID           string
	UserID       string
	ProductSlug  string
	PurchaseType string
	CreatedAt    time.Time
	ExpiresAt    *time.Time // nil: never expires
}

func (p *ProductPurchase) Active(now time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}
